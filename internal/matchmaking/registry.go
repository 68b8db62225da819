package matchmaking

// Registry holds connected users and the FIFO queue of connection ids waiting
// for a partner. It is not safe for concurrent use; the Matchmaker serializes
// access to it.
type Registry struct {
	users  map[string]*User
	queue  []string
	queued map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		users:  make(map[string]*User),
		queued: make(map[string]struct{}),
	}
}

// Add stores the user. It reports false if the id is already registered.
func (r *Registry) Add(u *User) bool {
	if _, exists := r.users[u.ID]; exists {
		return false
	}
	r.users[u.ID] = u
	return true
}

// Remove drops the user and any queue entry for it. It returns the removed user,
// or nil if the id was unknown.
func (r *Registry) Remove(id string) *User {
	u, exists := r.users[id]
	if !exists {
		return nil
	}
	delete(r.users, id)
	r.Dequeue(id)
	return u
}

func (r *Registry) Lookup(id string) *User {
	return r.users[id]
}

// Enqueue appends id to the queue unless it is already waiting.
func (r *Registry) Enqueue(id string) bool {
	if _, waiting := r.queued[id]; waiting {
		return false
	}
	r.queued[id] = struct{}{}
	r.queue = append(r.queue, id)
	return true
}

// EnqueueFront puts id back at the head of the queue, keeping its place in line.
func (r *Registry) EnqueueFront(id string) bool {
	if _, waiting := r.queued[id]; waiting {
		return false
	}
	r.queued[id] = struct{}{}
	r.queue = append([]string{id}, r.queue...)
	return true
}

// Pop removes and returns the id at the head of the queue.
func (r *Registry) Pop() (string, bool) {
	if len(r.queue) == 0 {
		return "", false
	}
	id := r.queue[0]
	r.queue[0] = ""
	r.queue = r.queue[1:]
	delete(r.queued, id)
	return id, true
}

// Dequeue removes id from anywhere in the queue.
func (r *Registry) Dequeue(id string) bool {
	if _, waiting := r.queued[id]; !waiting {
		return false
	}
	delete(r.queued, id)
	for i, queuedID := range r.queue {
		if queuedID == id {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			break
		}
	}
	return true
}

func (r *Registry) IsQueued(id string) bool {
	_, waiting := r.queued[id]
	return waiting
}

func (r *Registry) QueueLen() int { return len(r.queue) }

func (r *Registry) UserCount() int { return len(r.users) }

// Queue returns a copy of the waiting ids in FIFO order.
func (r *Registry) Queue() []string {
	return append([]string(nil), r.queue...)
}
