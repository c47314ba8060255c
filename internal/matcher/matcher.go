// Package matcher evaluates file-change matchers and compares the resulting signatures.
package matcher

// Behavior selects how a matcher detects that a file changed.
type Behavior string

// Supported behaviors.
const (
	BehaviorMixed      Behavior = "Mixed"
	BehaviorTimestamps Behavior = "Timestamps"
	BehaviorHash       Behavior = "Hash"
)

// Behaviors lists the accepted behaviors in documentation order.
func Behaviors() []Behavior {
	return []Behavior{BehaviorMixed, BehaviorTimestamps, BehaviorHash}
}

// ParseBehavior returns the behavior named by value and whether it is supported.
func ParseBehavior(value string) (Behavior, bool) {
	for _, behavior := range Behaviors() {
		if string(behavior) == value {
			return behavior, true
		}
	}
	return "", false
}

// Matcher declares which files under Root are watched and how their changes are detected.
// Pattern and Exclude use doublestar syntax against slash-separated paths relative to Root.
type Matcher struct {
	Pattern  string
	Exclude  []string
	Root     string
	Behavior Behavior
}
