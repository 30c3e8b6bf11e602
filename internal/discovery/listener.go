package discovery

import (
	"github.com/muurk/ssdp/internal/protocol"
)

// Listener observes traffic on a Service. Callbacks run on the receive
// goroutine or the sending goroutine and must not block for long.
// Implementations must be comparable (use pointer receivers).
type Listener interface {
	// OnSend is called before a message is written to the socket.
	OnSend(s *Service, msg protocol.Message)

	// OnReceive is called for every datagram that parsed as a message.
	OnReceive(s *Service, msg protocol.Message)
}

// Registrant is a Listener that drives its own scheduled work. OnRegister
// returns the tasks it installed; the service hands them back to
// OnUnregister on removal and cancels them on Stop.
type Registrant interface {
	Listener
	OnRegister(s *Service) []*Task
	OnUnregister(s *Service, tasks []*Task)
}

// Funcs adapts plain functions to Listener. Either field may be nil.
type Funcs struct {
	Send    func(s *Service, msg protocol.Message)
	Receive func(s *Service, msg protocol.Message)
}

func (f *Funcs) OnSend(s *Service, msg protocol.Message) {
	if f.Send != nil {
		f.Send(s, msg)
	}
}

func (f *Funcs) OnReceive(s *Service, msg protocol.Message) {
	if f.Receive != nil {
		f.Receive(s, msg)
	}
}

// listenerSet is an immutable snapshot; mutations build a new one.
type listenerSet []Listener

func (ls listenerSet) with(l Listener) listenerSet {
	for _, have := range ls {
		if have == l {
			return ls
		}
	}
	out := make(listenerSet, len(ls), len(ls)+1)
	copy(out, ls)
	return append(out, l)
}

func (ls listenerSet) without(l Listener) (listenerSet, bool) {
	for i, have := range ls {
		if have == l {
			out := make(listenerSet, 0, len(ls)-1)
			out = append(out, ls[:i]...)
			return append(out, ls[i+1:]...), true
		}
	}
	return ls, false
}
