package leaderboard

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"

	"rewardkit/core"
)

// Skip list ordered by (points desc, user asc) for O(log n) updates. Rank
// and TopN walk level 0.

const (
	maxHeight = 16
	promoteP  = 0.25
)

type node struct {
	e    Entry
	next [maxHeight]*node
}

type SkipList struct {
	mu     sync.RWMutex
	head   *node
	height int
	index  map[core.UserID]*node
	rng    *rand.Rand
}

func NewSkipList() *SkipList {
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		seed = [16]byte{}
	}
	return &SkipList{
		head:   &node{},
		height: 1,
		index:  map[core.UserID]*node{},
		rng:    rand.New(rand.NewPCG(binary.BigEndian.Uint64(seed[:8]), binary.BigEndian.Uint64(seed[8:]))),
	}
}

func (s *SkipList) randomHeight() int {
	h := 1
	for h < maxHeight && s.rng.Float64() < promoteP {
		h++
	}
	return h
}

// before reports whether a ranks ahead of b: more points first, ties broken
// by user ID so ordering is total and stable.
func before(a, b Entry) bool {
	if a.Points == b.Points {
		return a.User < b.User
	}
	return a.Points > b.Points
}

// Update inserts the user or moves them to a new point total.
func (s *SkipList) Update(user core.UserID, points int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.index[user]; ok {
		s.removeLocked(user, old.e)
	}
	e := Entry{User: user, Points: points}
	var update [maxHeight]*node
	cur := s.head
	for i := s.height - 1; i >= 0; i-- {
		for cur.next[i] != nil && before(cur.next[i].e, e) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	h := s.randomHeight()
	if h > s.height {
		for i := s.height; i < h; i++ {
			update[i] = s.head
		}
		s.height = h
	}
	n := &node{e: e}
	for i := 0; i < h; i++ {
		n.next[i] = update[i].next[i]
		update[i].next[i] = n
	}
	s.index[user] = n
}

func (s *SkipList) removeLocked(user core.UserID, e Entry) {
	var update [maxHeight]*node
	cur := s.head
	for i := s.height - 1; i >= 0; i-- {
		for cur.next[i] != nil && before(cur.next[i].e, e) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	target := update[0].next[0]
	if target == nil || target.e.User != user {
		return
	}
	for i := 0; i < s.height; i++ {
		if update[i].next[i] == target {
			update[i].next[i] = target.next[i]
		}
	}
	delete(s.index, user)
	for s.height > 1 && s.head.next[s.height-1] == nil {
		s.height--
	}
}

func (s *SkipList) Remove(user core.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.index[user]; ok {
		s.removeLocked(user, n.e)
	}
}

// TopN returns the n highest-ranked entries in order.
func (s *SkipList) TopN(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	out := make([]Entry, 0, n)
	for cur := s.head.next[0]; cur != nil && len(out) < n; cur = cur.next[0] {
		out = append(out, cur.e)
	}
	return out
}

func (s *SkipList) Get(user core.UserID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.index[user]; ok {
		return n.e, true
	}
	return Entry{}, false
}

// Rank returns the user's 1-based position, or false if absent.
func (s *SkipList) Rank(user core.UserID) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.index[user]; !ok {
		return 0, false
	}
	pos := 1
	for cur := s.head.next[0]; cur != nil; cur = cur.next[0] {
		if cur.e.User == user {
			return pos, true
		}
		pos++
	}
	return 0, false
}

func (s *SkipList) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

var _ Board = (*SkipList)(nil)
