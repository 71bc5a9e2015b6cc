package eventsink

import "testing"

func TestInProcessPublishBroadcastsToAllSubscribers(t *testing.T) {
	bus := NewInProcess()
	var gotA, gotB TaskStateChange
	bus.Subscribe("a", func(change TaskStateChange) { gotA = change })
	bus.Subscribe("b", func(change TaskStateChange) { gotB = change })

	want := TaskStateChange{TaskID: "t1", OldStatus: 0, NewStatus: 1, Message: "assigned"}
	bus.Publish(want)

	if gotA != want {
		t.Errorf("subscriber a got %+v, want %+v", gotA, want)
	}
	if gotB != want {
		t.Errorf("subscriber b got %+v, want %+v", gotB, want)
	}
}

func TestInProcessUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewInProcess()
	calls := 0
	bus.Subscribe("a", func(change TaskStateChange) { calls++ })
	bus.Unsubscribe("a")

	bus.Publish(TaskStateChange{TaskID: "t1"})

	if calls != 0 {
		t.Errorf("expected no delivery after Unsubscribe, got %d calls", calls)
	}
}

func TestInProcessPublishWithNoSubscribersIsNoop(t *testing.T) {
	bus := NewInProcess()
	bus.Publish(TaskStateChange{TaskID: "t1"})
}
