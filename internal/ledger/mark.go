package ledger

import (
	"encoding/json"
	"fmt"
)

// Plagiarism is the disqualification sentinel a tutor writes into the points
// file instead of a numeric value. It validates as a legal mark but is
// excluded from every numeric sum.
const Plagiarism = "Plagiarism"

// Mark is a single recorded point value: unset, numeric, or the
// disqualification sentinel. In the points file an unset mark is the empty
// string, so freshly initialized files show tutors exactly which fields they
// still have to fill in.
type Mark struct {
	set          bool
	disqualified bool
	points       float64
}

func Points(v float64) Mark {
	return Mark{set: true, points: v}
}

func Disqualified() Mark {
	return Mark{set: true, disqualified: true}
}

func Unset() Mark {
	return Mark{}
}

func (m Mark) IsSet() bool { return m.set }

func (m Mark) IsDisqualified() bool { return m.set && m.disqualified }

// Value returns the numeric points; only meaningful for set, non-disqualified
// marks.
func (m Mark) Value() float64 { return m.points }

func (m Mark) String() string {
	switch {
	case !m.set:
		return ""
	case m.disqualified:
		return Plagiarism
	default:
		return fmt.Sprintf("%g", m.points)
	}
}

func (m Mark) MarshalJSON() ([]byte, error) {
	switch {
	case !m.set:
		return json.Marshal("")
	case m.disqualified:
		return json.Marshal(Plagiarism)
	default:
		return json.Marshal(m.points)
	}
}

func (m *Mark) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*m = Points(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("mark must be a number, %q, or empty, got %s", Plagiarism, string(data))
	}
	switch s {
	case "":
		*m = Unset()
	case Plagiarism:
		*m = Disqualified()
	default:
		return fmt.Errorf("mark must be a number, %q, or empty, got %q", Plagiarism, s)
	}
	return nil
}
