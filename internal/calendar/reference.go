package calendar

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"clickcal/internal/model"
)

var (
	whenOnce   sync.Once
	whenParser *when.Parser
)

func naturalParser() *when.Parser {
	whenOnce.Do(func() {
		whenParser = when.New(nil)
		whenParser.Add(en.All...)
		whenParser.Add(common.All...)
	})
	return whenParser
}

// ParseReference resolves the ?date= value of a page request.
//
// Accepted forms, tried in order:
//   - ""            -> the day of now
//   - "2025-11-15"  -> that day
//   - "2025-11"     -> the first of that month
//   - English phrases understood by olebedev/when ("today", "next friday",
//     "in 2 weeks"), resolved relative to now
func ParseReference(s string, now time.Time) (model.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.DateOf(now), nil
	}
	if d, err := model.ParseDate(s); err == nil {
		return d, nil
	}
	if t, err := time.Parse("2006-01", s); err == nil && len(s) == len("2006-01") {
		return model.DateOf(t), nil
	}

	r, err := naturalParser().Parse(s, now)
	if err != nil {
		return model.Date{}, fmt.Errorf("%w: %q: %v", model.ErrInvalidDate, s, err)
	}
	if r == nil {
		return model.Date{}, fmt.Errorf("%w: %q", model.ErrInvalidDate, s)
	}
	return model.DateOf(r.Time.In(now.Location())), nil
}
