package roster

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Student is immutable once loaded from the shared config. In the config
// files and in submission.json it is stored as a 3-tuple
// [first_name, last_name, email].
type Student struct {
	FirstName string `validate:"required"`
	LastName  string `validate:"required"`
	Email     string `validate:"required,email"`
}

func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

func (s Student) Validate() error {
	validate := validator.New()
	return validate.Struct(s)
}

func (s Student) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{s.FirstName, s.LastName, s.Email})
}

func (s *Student) UnmarshalJSON(data []byte) error {
	var tuple []string
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 3 {
		return fmt.Errorf("student entry must be a [first, last, email] tuple, got %d fields", len(tuple))
	}
	s.FirstName, s.LastName, s.Email = tuple[0], tuple[1], tuple[2]
	return nil
}
