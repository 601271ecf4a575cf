package host

import "testing"

func TestBroadcaster_FanoutAndLastValue(t *testing.T) {
	bc := NewProgressBroadcaster()

	id1, ch1 := bc.Subscribe(4)
	bc.Publish(Progress{State: "downloading", Records: 3})

	select {
	case p := <-ch1:
		if p.Records != 3 {
			t.Fatalf("got %+v", p)
		}
	default:
		t.Fatalf("subscriber missed publish")
	}

	// A late subscriber gets the most recent sample immediately.
	id2, ch2 := bc.Subscribe(4)
	select {
	case p := <-ch2:
		if p.Records != 3 {
			t.Fatalf("late subscriber got %+v", p)
		}
	default:
		t.Fatalf("late subscriber got nothing")
	}

	bc.Unsubscribe(id1)
	bc.Unsubscribe(id2)
	if _, ok := <-ch1; ok {
		t.Fatalf("channel not closed on unsubscribe")
	}

	// Publishing with no subscribers must not block or panic.
	bc.Publish(Progress{State: "completed"})
}

func TestBroadcaster_SlowSubscriberDropsNotBlocks(t *testing.T) {
	bc := NewProgressBroadcaster()
	_, ch := bc.Subscribe(1)

	bc.Publish(Progress{Records: 1})
	bc.Publish(Progress{Records: 2}) // dropped, buffer full

	p := <-ch
	if p.Records != 1 {
		t.Fatalf("got %+v", p)
	}
	select {
	case p := <-ch:
		t.Fatalf("unexpected extra sample %+v", p)
	default:
	}
}
