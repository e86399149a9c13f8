package types

import "fmt"

// Label is the verdict produced by the request classifier.
type Label string

const (
	LabelNormal       Label = "Normal"
	LabelSQLInjection Label = "SQL Injection"
	LabelXSS          Label = "XSS"
)

// classLabels is the canonical class id mapping of the trained model.
var classLabels = map[int]Label{
	0: LabelNormal,
	1: LabelSQLInjection,
	2: LabelXSS,
}

// LabelForClass maps a model class id to its label.
func LabelForClass(id int) (Label, error) {
	l, ok := classLabels[id]
	if !ok {
		return "", fmt.Errorf("unknown class id %d", id)
	}
	return l, nil
}

// ClassID returns the model class id for the label, or -1 if unknown.
func (l Label) ClassID() int {
	switch l {
	case LabelNormal:
		return 0
	case LabelSQLInjection:
		return 1
	case LabelXSS:
		return 2
	default:
		return -1
	}
}

// Malicious reports whether the label denotes an attack.
func (l Label) Malicious() bool {
	return l == LabelSQLInjection || l == LabelXSS
}

func ParseLabel(s string) (Label, bool) {
	switch Label(s) {
	case LabelNormal, LabelSQLInjection, LabelXSS:
		return Label(s), true
	default:
		return "", false
	}
}
