// Package statuslistener turns a device's 32-bit (wire: 16-bit) flow_status
// word into an ordered sequence of idempotent event callbacks, per §4.10.
package statuslistener

import (
	"sort"
	"sync"

	"github.com/ytemiloluwa/device-sdk-go/internal/logging"
)

// window classifies where an event id sits relative to a seed-generation
// overlay, table-driven per the spec's "implement as a table-driven
// classifier" design note (§9).
type window int

const (
	windowBelow window = iota
	windowInside
	windowAfter
)

// Listener synthesizes ordered, idempotent event deliveries from repeated
// flow_status observations. One Listener is owned by a single operation
// invocation and discarded when that operation completes.
type Listener struct {
	mu sync.Mutex

	enums []int // ascending, the events this caller wants to observe

	hasSeedWindow      bool
	seedGeneratedValue int // the operation enum's SEED_GENERATED value
	seedStateCount     int // len(seed_generation_enums)

	delivered map[int]bool
	onEvent   func(eventID int)
	log       logging.Logger
}

// Option configures optional overlays on top of the plain enums list.
type Option func(*Listener)

// WithSeedGenerationWindow overlays a secondary vocabulary (seedEnumCount
// distinct sub-states, e.g. INIT/PASSPHRASE/CARD) onto the core byte while
// the operation byte sits at seedGeneratedValue (the operation enum's
// SEED_GENERATED value).
func WithSeedGenerationWindow(seedGeneratedValue, seedEnumCount int) Option {
	return func(l *Listener) {
		l.hasSeedWindow = true
		l.seedGeneratedValue = seedGeneratedValue
		l.seedStateCount = seedEnumCount
	}
}

// WithLogger overrides the default logger.
func WithLogger(log logging.Logger) Option {
	return func(l *Listener) { l.log = log }
}

// New builds a Listener over the ascending event ids the caller wants
// delivered, invoking onEvent at most once per id as on_status observations
// mark it complete.
func New(enums []int, onEvent func(eventID int), opts ...Option) *Listener {
	sorted := append([]int{}, enums...)
	sort.Ints(sorted)

	l := &Listener{
		enums:     sorted,
		delivered: make(map[int]bool, len(sorted)),
		onEvent:   onEvent,
		log:       logging.Default,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Listener) classify(eventID int) window {
	if !l.hasSeedWindow {
		return windowBelow
	}
	if eventID < l.seedGeneratedValue {
		return windowBelow
	}
	if l.seedStateCount >= 2 && eventID <= l.seedGeneratedValue+l.seedStateCount-2 {
		return windowInside
	}
	return windowAfter
}

func (l *Listener) completed(eventID int, operationByte, coreByte int) bool {
	switch l.classify(eventID) {
	case windowInside:
		return coreByte > eventID-l.seedGeneratedValue
	case windowAfter:
		return operationByte > eventID-l.seedGeneratedValue+1
	default:
		return operationByte >= eventID
	}
}

// OnStatus evaluates a newly observed flow_status word, delivering every
// event that has just become complete, in ascending order. Applying the
// same flow_status twice delivers nothing new: delivery is idempotent.
func (l *Listener) OnStatus(flowStatus uint32) {
	operationByte := int(flowStatus & 0xFF)
	coreByte := int((flowStatus >> 8) & 0xFF)

	l.mu.Lock()
	var newly []int
	for _, id := range l.enums {
		if l.delivered[id] {
			continue
		}
		if l.completed(id, operationByte, coreByte) {
			l.delivered[id] = true
			newly = append(newly, id)
		}
	}
	l.mu.Unlock()

	for _, id := range newly {
		l.log.Debugf("status event %d delivered (flow_status=%#x)", id, flowStatus)
		l.onEvent(id)
	}
}

// ForceStatusUpdate marks every event id <= eventID as delivered, invoking
// onEvent in ascending order for any that were not already delivered. Used
// when an operation concludes and the caller wants to collapse any events
// the device never explicitly reported.
func (l *Listener) ForceStatusUpdate(eventID int) {
	l.mu.Lock()
	var newly []int
	for _, id := range l.enums {
		if id > eventID {
			break
		}
		if l.delivered[id] {
			continue
		}
		l.delivered[id] = true
		newly = append(newly, id)
	}
	l.mu.Unlock()

	for _, id := range newly {
		l.log.Debugf("status event %d force-delivered", id)
		l.onEvent(id)
	}
}

// Pack combines an operation byte and a core byte into the wire
// flow_status representation, the inverse of the split OnStatus performs.
// Exported for tests and for callers that construct synthetic statuses.
func Pack(operationByte, coreByte int) uint32 {
	return uint32(operationByte&0xFF) | uint32(coreByte&0xFF)<<8
}
