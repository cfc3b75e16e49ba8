package ordering

import "fmt"

// RoundEvent is a storage-pipeline notification driving round advancement:
// either a block was committed at some height, or the previous round
// produced no block.
type RoundEvent struct {
	height uint64
	block  bool
}

// NewBlockEvent reports a block committed at height.
func NewBlockEvent(height uint64) RoundEvent {
	return RoundEvent{height: height, block: true}
}

// NewEmptyEvent reports that no block was produced.
func NewEmptyEvent() RoundEvent {
	return RoundEvent{}
}

// BlockHeight returns the committed height when the event is a block event.
func (e RoundEvent) BlockHeight() (uint64, bool) {
	return e.height, e.block
}

func (e RoundEvent) String() string {
	if e.block {
		return fmt.Sprintf("BlockEvent{%d}", e.height)
	}
	return "EmptyEvent{}"
}
