package compiler

import (
	"fmt"

	"dashshot/internal/models"
)

// ResolveSecrets returns a copy of events where the value of every secret
// change or totp event, which holds a secret key, is replaced by the value
// stored under that key. A missing key fails the whole compile.
func ResolveSecrets(events []models.Event, table models.SecretTable) ([]models.Event, error) {
	out := make([]models.Event, len(events))
	for i, e := range events {
		if e.IsSecret && (e.Action == models.ActionChange || e.Action == models.ActionTotp) {
			v, ok := table.Lookup(e.Value)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, e.Value)
			}
			e.Value = v
		}
		out[i] = e
	}
	return out, nil
}

// PopulateSettings prepends the capture viewport and puts the scroll offset
// and pause in front of the final recorded event.
func PopulateSettings(events []models.Event, settings models.Settings) []models.Event {
	viewport := models.Event{Action: models.ActionViewport, Width: settings.Width, Height: settings.Height}
	scroll := models.Event{Action: models.ActionScroll, Number: settings.Scroll}
	pause := models.Event{Action: models.ActionPause, Number: int(settings.Pause.Milliseconds())}

	cut := len(events) - 1
	if cut < 0 {
		cut = 0
	}
	out := make([]models.Event, 0, len(events)+3)
	out = append(out, viewport)
	out = append(out, events[:cut]...)
	out = append(out, scroll, pause)
	return append(out, events[cut:]...)
}
