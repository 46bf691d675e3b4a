package appointment

import (
	"fmt"
	"strings"
	"time"
)

type WorkingHours struct {
	Start       string
	End         string
	LunchStart  string
	LunchEnd    string
	SlotMinutes int
}

// DefaultWorkingHours yields the 16 half-hour slots of 08:00-17:00 minus lunch.
func DefaultWorkingHours() WorkingHours {
	return WorkingHours{
		Start:       "08:00",
		End:         "17:00",
		LunchStart:  "12:00",
		LunchEnd:    "13:00",
		SlotMinutes: 30,
	}
}

// Catalog is the ordered list of bookable intervals of a working day.
type Catalog struct {
	labels []string
	starts map[string]string
	byKey  map[string]string
}

func NewCatalog(wh WorkingHours) (*Catalog, error) {
	if wh.SlotMinutes <= 0 {
		return nil, fmt.Errorf("slot length must be positive, got %d", wh.SlotMinutes)
	}

	parseHM := func(hm string) (time.Time, error) {
		return time.Parse("15:04", strings.TrimSpace(hm))
	}

	dayStart, err := parseHM(wh.Start)
	if err != nil {
		return nil, fmt.Errorf("invalid work start %q: %w", wh.Start, err)
	}
	dayEnd, err := parseHM(wh.End)
	if err != nil {
		return nil, fmt.Errorf("invalid work end %q: %w", wh.End, err)
	}
	if !dayEnd.After(dayStart) {
		return nil, fmt.Errorf("work end %s is not after start %s", wh.End, wh.Start)
	}

	hasLunch := wh.LunchStart != "" && wh.LunchEnd != ""
	var lunchStart, lunchEnd time.Time
	if hasLunch {
		if lunchStart, err = parseHM(wh.LunchStart); err != nil {
			return nil, fmt.Errorf("invalid lunch start %q: %w", wh.LunchStart, err)
		}
		if lunchEnd, err = parseHM(wh.LunchEnd); err != nil {
			return nil, fmt.Errorf("invalid lunch end %q: %w", wh.LunchEnd, err)
		}
	}

	c := &Catalog{
		starts: make(map[string]string),
		byKey:  make(map[string]string),
	}

	slot := time.Duration(wh.SlotMinutes) * time.Minute
	for cur := dayStart; !cur.Add(slot).After(dayEnd); cur = cur.Add(slot) {
		end := cur.Add(slot)

		if hasLunch && cur.Before(lunchEnd) && end.After(lunchStart) {
			continue
		}

		label := cur.Format("15:04") + " - " + end.Format("15:04")
		c.labels = append(c.labels, label)
		c.starts[label] = cur.Format("15:04")
		c.byKey[normalize(label)] = label
	}

	if len(c.labels) == 0 {
		return nil, fmt.Errorf("working hours %s-%s produce no slots", wh.Start, wh.End)
	}
	return c, nil
}

// Labels returns a copy of the catalog in display order.
func (c *Catalog) Labels() []string {
	out := make([]string, len(c.labels))
	copy(out, c.labels)
	return out
}

func (c *Catalog) Len() int {
	return len(c.labels)
}

// Canonical maps any spacing variant ("09:30-10:00") to the catalog label.
func (c *Catalog) Canonical(label string) (string, bool) {
	l, ok := c.byKey[normalize(label)]
	return l, ok
}

// StartOf returns the "15:04" start of a slot.
func (c *Catalog) StartOf(label string) (string, bool) {
	l, ok := c.Canonical(label)
	if !ok {
		return "", false
	}
	return c.starts[l], true
}

func normalize(label string) string {
	return strings.Join(strings.Fields(label), "")
}

// SameSlot reports whether two labels name the same interval.
func SameSlot(a, b string) bool {
	return a != "" && normalize(a) == normalize(b)
}
