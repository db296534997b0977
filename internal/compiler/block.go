package compiler

import "dashshot/internal/program"

// Kind tags a line with the recorded action or runtime step it came from.
type Kind string

const (
	KindBlank             Kind = ""
	KindClick             Kind = "click"
	KindChange            Kind = "change"
	KindKeydown           Kind = "keydown"
	KindSubmit            Kind = "submit"
	KindTotp              Kind = "totp"
	KindRemoveElement     Kind = "removeElement"
	KindGoto              Kind = "GOTO"
	KindViewport          Kind = "VIEWPORT"
	KindNavigation        Kind = "NAVIGATION"
	KindNavigationPromise Kind = "NAVIGATION_PROMISE"
	KindFrameSet          Kind = "FRAME_SET"
	KindScreenshot        Kind = "SCREENSHOT"
	KindPageSet           Kind = "PAGE_SET"
	KindCustom            Kind = "CUSTOM"
	KindPause             Kind = "PAUSE"
	KindScroll            Kind = "SCROLL"
)

// Line is one emitted fragment. Instr is nil for blank spacing lines.
type Line struct {
	Kind    Kind
	FrameID int
	Text    string
	Instr   *program.Instruction
}

// Block groups the lines produced for one event. Post-processing works on
// whole blocks and never moves lines across block boundaries.
type Block struct {
	frameID int
	lines   []Line
}

func NewBlock(frameID int) *Block {
	return &Block{frameID: frameID}
}

func newBlockWith(frameID int, kind Kind, ins ...program.Instruction) *Block {
	b := NewBlock(frameID)
	for _, i := range ins {
		b.AddLine(kind, i)
	}
	return b
}

func blankBlock() *Block {
	return &Block{lines: []Line{{Kind: KindBlank}}}
}

func (b *Block) FrameID() int {
	return b.frameID
}

func (b *Block) AddLine(kind Kind, ins program.Instruction) {
	b.lines = append(b.lines, b.line(kind, ins))
}

func (b *Block) AddLineToTop(kind Kind, ins program.Instruction) {
	b.lines = append([]Line{b.line(kind, ins)}, b.lines...)
}

func (b *Block) Lines() []Line {
	return b.lines
}

func (b *Block) line(kind Kind, ins program.Instruction) Line {
	return Line{
		Kind:    kind,
		FrameID: b.frameID,
		Text:    ins.String(),
		Instr:   &ins,
	}
}
