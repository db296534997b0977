// Package program defines the instruction set that compiled capture scripts
// are made of. Instructions are plain data: the executor interprets them
// against a browser driver and the compiler renders them to text for
// diagnostics.
package program

import "time"

type Op string

const (
	OpProcedure       Op = "procedure"
	OpGoto            Op = "goto"
	OpAuthenticate    Op = "authenticate"
	OpViewport        Op = "viewport"
	OpWatchNavigation Op = "watchNavigation"
	OpWaitNavigation  Op = "waitNavigation"
	OpWait            Op = "wait"
	OpWaitChain       Op = "waitChain"
	OpWaitHidden      Op = "waitHidden"
	OpWaitGone        Op = "waitGone"
	OpClick           Op = "click"
	OpTap             Op = "tap"
	OpPickMethod      Op = "pickMethod"
	OpType            Op = "type"
	OpClear           Op = "clear"
	OpTotp            Op = "totp"
	OpSelect          Op = "select"
	OpSubmit          Op = "submit"
	OpHide            Op = "hide"
	OpRemove          Op = "remove"
	OpEval            Op = "eval"
	OpSleep           Op = "sleep"
	OpScroll          Op = "scroll"
	OpSettle          Op = "settle"
	OpSwitchTab       Op = "switchTab"
	OpSwitchLastTab   Op = "switchLastTab"
	OpResolveFrame    Op = "resolveFrame"
	OpWithFrame       Op = "withFrame"
	OpRace            Op = "race"
	OpTry             Op = "try"
	OpScreenshot      Op = "screenshot"
	OpLog             Op = "log"
)

// Attempt is one alternative of a selector fallback chain.
type Attempt struct {
	Selector string
	Timeout  time.Duration
}

// Settle parameterizes a network-settlement wait.
type Settle struct {
	Timeout      time.Duration
	FirstRequest time.Duration
	Quiet        time.Duration
	MaxInflight  int
	// MinDuration makes the wait last at least this long.
	MinDuration time.Duration
}

// Marker is one contender of a race.
type Marker struct {
	Tag      string
	Selector string
	Timeout  time.Duration
}

type Branch struct {
	Tag  string
	Body []Instruction
}

// Race starts every marker wait concurrently and dispatches on the first to
// resolve. When none resolves, OnTimeout runs; a nil OnTimeout makes the race
// fail.
type Race struct {
	Markers   []Marker
	Branches  []Branch
	OnTimeout []Instruction
}

// Frame describes how to locate a recorded frame in the live page.
type Frame struct {
	ID    int
	URL   string
	Index int
	// Hops are tried in order, each hop descending one frame level.
	Hops [][]Attempt
}

// Shot describes a screenshot. An empty Selector captures the page.
type Shot struct {
	Selector       string
	BeyondViewport bool
	CropTop        int
	CropMaxHeight  int
	Quality        int
}

// PickMethod drives an identity-provider "choose another method" screen.
type PickMethod struct {
	Switch   string
	Target   string
	Attempts int
	Backoff  time.Duration
	Idle     time.Duration
}

type Instruction struct {
	Op       Op
	Selector string
	Chain    []Attempt
	Value    string
	Secret   bool // Value is sensitive; rendered text masks it
	Username string
	Timeout  time.Duration
	Delay    time.Duration
	Width    int
	Height   int
	Index    int
	Settle   *Settle
	Race     *Race
	Frame    *Frame
	Shot     *Shot
	Pick     *PickMethod
	Body     []Instruction
}
