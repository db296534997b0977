package logger

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const Mask = "******"

// RedactSecrets masks the value of every secret event found under stepsPath
// in a JSON document and drops the secret table, so capture payloads can be
// logged at debug level.
func RedactSecrets(raw []byte, stepsPath, secretsPath string) []byte {
	out := raw
	gjson.GetBytes(raw, stepsPath).ForEach(func(key, step gjson.Result) bool {
		if !step.Get("isSecret").Bool() {
			return true
		}
		path := fmt.Sprintf("%s.%d.value", stepsPath, key.Int())
		if redacted, err := sjson.SetBytes(out, path, Mask); err == nil {
			out = redacted
		}
		return true
	})
	if secretsPath != "" && gjson.GetBytes(out, secretsPath).Exists() {
		if redacted, err := sjson.DeleteBytes(out, secretsPath); err == nil {
			out = redacted
		}
	}
	return out
}
