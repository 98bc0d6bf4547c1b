package analysis

import (
	"errors"
	"fmt"
)

var errNoJSON = errors.New("no JSON object in response")

type unknownCodeError struct {
	code string
}

func (e *unknownCodeError) Error() string {
	return fmt.Sprintf("unknown classification code %q", e.code)
}
