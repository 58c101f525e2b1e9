package relay

import (
	"fmt"
	"sort"
	"sync"
)

// Conn is a live connection to a plugin or agent.
type Conn interface {
	// ID returns an identifier unique among live connections.
	ID() string
	// Send writes one frame. Calls are serialized by the implementation.
	Send(data []byte) error
}

// Membership is the channel and role a connection joined under.
type Membership struct {
	Channel string
	Role    Role
}

// ChannelState is the occupancy of a channel's role slots.
type ChannelState int

const (
	ChannelEmpty      ChannelState = iota // No slot occupied; the channel is not registered.
	ChannelHalfJoined                     // Exactly one role present.
	ChannelFull                           // Plugin and agent both present.
)

func (s ChannelState) String() string {
	switch s {
	case ChannelEmpty:
		return "empty"
	case ChannelHalfJoined:
		return "half_joined"
	case ChannelFull:
		return "full"
	default:
		return fmt.Sprintf("ChannelState(%d)", int(s))
	}
}

// ChannelInfo describes a registered channel.
type ChannelInfo struct {
	Key   string
	Roles []Role
	State ChannelState
}

// Departure describes the effect of removing a connection from its
// channel.
type Departure struct {
	Membership
	// Counterpart is the connection still present in the channel, or nil.
	Counterpart Conn
	// Evicted reports whether the channel was removed from the registry.
	Evicted bool
}

type channel struct {
	slots map[Role]Conn
}

func (c *channel) state() ChannelState {
	switch len(c.slots) {
	case 0:
		return ChannelEmpty
	case 1:
		return ChannelHalfJoined
	default:
		return ChannelFull
	}
}

// ChannelRegistry owns the active channels. Each channel holds at most one
// plugin and one agent connection and exists only while at least one slot
// is occupied. A reverse index maps connection ids to memberships so
// disconnects do not scan the channel map.
type ChannelRegistry struct {
	mu       sync.Mutex
	channels map[string]*channel
	members  map[string]Membership
}

// NewChannelRegistry creates an empty registry.
func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{
		channels: make(map[string]*channel),
		members:  make(map[string]Membership),
	}
}

// Join places conn in the role slot of the channel identified by key,
// creating the channel on first use. An occupied slot yields
// ErrRoleConflict and leaves the registry unchanged. Joining again under
// the same membership is a no-op; joining under another membership while
// still a member yields ErrAlreadyJoined.
func (r *ChannelRegistry) Join(conn Conn, role Role, key string) error {
	if !role.Valid() {
		return fmt.Errorf("role %q: %w", role, ErrUnknownRole)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	want := Membership{Channel: key, Role: role}
	if m, ok := r.members[conn.ID()]; ok {
		if m == want {
			return nil
		}
		return fmt.Errorf("channel %s as %s: %w", m.Channel, m.Role, ErrAlreadyJoined)
	}

	ch, ok := r.channels[key]
	if ok {
		if _, taken := ch.slots[role]; taken {
			return fmt.Errorf("%s in channel %s: %w", role, key, ErrRoleConflict)
		}
	} else {
		ch = &channel{slots: make(map[Role]Conn, 2)}
		r.channels[key] = ch
	}
	ch.slots[role] = conn
	r.members[conn.ID()] = want
	return nil
}

// Leave removes conn from its channel and evicts the channel once both
// slots are empty. It returns false when conn is not a member.
func (r *ChannelRegistry) Leave(conn Conn) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[conn.ID()]
	if !ok {
		return Departure{}, false
	}
	delete(r.members, conn.ID())

	d := Departure{Membership: m}
	ch, ok := r.channels[m.Channel]
	if !ok {
		return d, true
	}
	delete(ch.slots, m.Role)
	d.Counterpart = ch.slots[m.Role.Counterpart()]
	if ch.state() == ChannelEmpty {
		delete(r.channels, m.Channel)
		d.Evicted = true
	}
	return d, true
}

// Route returns the membership of conn and the connection occupying the
// opposite role. It returns ErrNotJoined when conn is not a member and
// ErrNoCounterpart, together with the membership, when the other slot is
// empty.
func (r *ChannelRegistry) Route(conn Conn) (Membership, Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[conn.ID()]
	if !ok {
		return Membership{}, nil, ErrNotJoined
	}
	ch, ok := r.channels[m.Channel]
	if !ok {
		return m, nil, ErrNoCounterpart
	}
	peer, ok := ch.slots[m.Role.Counterpart()]
	if !ok {
		return m, nil, ErrNoCounterpart
	}
	return m, peer, nil
}

// Lookup returns the membership of conn.
func (r *ChannelRegistry) Lookup(conn Conn) (Membership, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[conn.ID()]
	return m, ok
}

// State returns the occupancy of the channel identified by key.
func (r *ChannelRegistry) State(key string) ChannelState {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[key]
	if !ok {
		return ChannelEmpty
	}
	return ch.state()
}

// Len returns the number of registered channels.
func (r *ChannelRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// Channels returns the registered channels sorted by key.
func (r *ChannelRegistry) Channels() []ChannelInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	infos := make([]ChannelInfo, 0, len(r.channels))
	for key, ch := range r.channels {
		info := ChannelInfo{Key: key, State: ch.state()}
		for _, role := range []Role{RolePlugin, RoleAgent} {
			if _, ok := ch.slots[role]; ok {
				info.Roles = append(info.Roles, role)
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}
