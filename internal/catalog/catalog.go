package catalog

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type EventType string

const (
	CrystalSpider EventType = "crystal_spider"
	SphereBlue    EventType = "sphere_blue"
	SpherePurple  EventType = "sphere_purple"
	SphereGold    EventType = "sphere_gold"
	VortexGreen   EventType = "vortex_green"
	VortexBlue    EventType = "vortex_blue"
	VortexPurple  EventType = "vortex_purple"
	VortexGold    EventType = "vortex_gold"
)

type Action string

const (
	Kill      Action = "kill"
	Capture   Action = "capture"
	Transport Action = "transport"
)

// MaxParticipants caps the group size of a single submission.
const MaxParticipants = 20

var ErrUnknownEventOrAction = errors.New("unknown event or action")

// DefaultMultipliers is the discrete set a reviewer chooses from at approval time.
var DefaultMultipliers = []float64{1, 1.5, 2, 3, 5, 6, 10}

type Entry struct {
	Type       EventType
	Name       string
	Emoji      string
	Actions    []Action
	BasePoints map[Action]float64
}

func (e Entry) Allows(action Action) bool {
	for _, allowed := range e.Actions {
		if allowed == action {
			return true
		}
	}
	return false
}

type Option struct {
	Value       string
	Label       string
	Description string
	Emoji       string
}

// Catalog is immutable after New returns and safe for concurrent reads.
type Catalog struct {
	entries map[EventType]Entry
	order   []EventType
}

func New(entries ...Entry) (*Catalog, error) {
	c := &Catalog{entries: make(map[EventType]Entry, len(entries))}
	for _, entry := range entries {
		if _, dup := c.entries[entry.Type]; dup {
			return nil, fmt.Errorf("catalog: duplicate event type %q", entry.Type)
		}
		for action, points := range entry.BasePoints {
			if !entry.Allows(action) {
				return nil, fmt.Errorf("catalog: %s has points for disallowed action %q", entry.Type, action)
			}
			if points <= 0 {
				return nil, fmt.Errorf("catalog: %s/%s base points must be positive", entry.Type, action)
			}
		}
		points := make(map[Action]float64, len(entry.BasePoints))
		for action, value := range entry.BasePoints {
			points[action] = value
		}
		entry.BasePoints = points
		entry.Actions = append([]Action(nil), entry.Actions...)
		c.entries[entry.Type] = entry
		c.order = append(c.order, entry.Type)
	}
	return c, nil
}

func Default() *Catalog {
	transport := func(t EventType, name, emoji string, points float64) Entry {
		return Entry{Type: t, Name: name, Emoji: emoji, Actions: []Action{Transport}, BasePoints: map[Action]float64{Transport: points}}
	}
	c, err := New(
		Entry{Type: CrystalSpider, Name: "Кристальный жук", Emoji: "🕷️", Actions: []Action{Kill}, BasePoints: map[Action]float64{Kill: 1.0}},
		transport(SphereBlue, "Синяя сфера", "🔵", 1.5),
		transport(SpherePurple, "Фиолетовая сфера", "🟣", 3.0),
		transport(SphereGold, "Золотая сфера", "🟡", 5.0),
		transport(VortexGreen, "Зеленый вихрь", "🌪️", 2.0),
		transport(VortexBlue, "Синий вихрь", "🌀", 3.0),
		transport(VortexPurple, "Фиолетовый вихрь", "🌊", 6.0),
		transport(VortexGold, "Золотой вихрь", "💫", 10.0),
	)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Entry(eventType EventType) (Entry, bool) {
	entry, ok := c.entries[eventType]
	return entry, ok
}

func (c *Catalog) BasePoints(eventType EventType, action Action) (float64, error) {
	entry, ok := c.entries[eventType]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownEventOrAction, eventType)
	}
	points, ok := entry.BasePoints[action]
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", ErrUnknownEventOrAction, eventType, action)
	}
	return points, nil
}

func (c *Catalog) DisplayName(eventType EventType, action Action) string {
	entry, ok := c.entries[eventType]
	if !ok {
		return string(eventType) + " (" + ActionLabel(action) + ")"
	}
	return entry.Emoji + " " + entry.Name + " (" + ActionLabel(action) + ")"
}

// Options lists every registered pair in registration order, formatted for a select menu.
func (c *Catalog) Options() []Option {
	var options []Option
	for _, eventType := range c.order {
		entry := c.entries[eventType]
		for _, action := range entry.Actions {
			points, ok := entry.BasePoints[action]
			if !ok {
				continue
			}
			options = append(options, Option{
				Value:       SelectionValue(eventType, action),
				Label:       entry.Name + " (" + ActionLabel(action) + ")",
				Description: "Базовые очки: " + FormatPoints(points),
				Emoji:       entry.Emoji,
			})
		}
	}
	return options
}

func ActionLabel(action Action) string {
	switch action {
	case Kill:
		return "убийство"
	case Capture:
		return "захват"
	case Transport:
		return "доставка"
	default:
		return string(action)
	}
}

func SelectionValue(eventType EventType, action Action) string {
	return string(eventType) + "_" + string(action)
}

// ParseSelection splits "<event_type>_<action>" on the last underscore and
// validates the pair against the catalog.
func (c *Catalog) ParseSelection(value string) (EventType, Action, error) {
	idx := strings.LastIndex(value, "_")
	if idx <= 0 || idx == len(value)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownEventOrAction, value)
	}
	eventType := EventType(value[:idx])
	action := Action(value[idx+1:])
	if _, err := c.BasePoints(eventType, action); err != nil {
		return "", "", err
	}
	return eventType, action, nil
}

// FinalPoints is the per-participant award: round(base*multiplier/groupSize, 2).
func FinalPoints(base, multiplier float64, groupSize int) float64 {
	if groupSize <= 0 {
		return 0
	}
	return Round2(base * multiplier / float64(groupSize))
}

// Round2 rounds the exact binary value half-to-even at two decimals.
func Round2(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(value, 'f', 2, 64), 64)
	if err != nil {
		return math.Round(value*100) / 100
	}
	return rounded
}

func FormatPoints(points float64) string {
	if points == math.Trunc(points) {
		return strconv.FormatInt(int64(points), 10)
	}
	return strconv.FormatFloat(points, 'f', -1, 64)
}

func ValidMultiplier(allowed []float64, multiplier float64) bool {
	for _, value := range allowed {
		if value == multiplier {
			return true
		}
	}
	return false
}
