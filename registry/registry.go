// Package registry lets the skill process locate its long-lived worker
// process without hardcoded addresses.
package registry

// WorkerInstance describes one running worker: where its request/reply
// channel listens and where its event channel publishes.
type WorkerInstance struct {
	Addr      string // request/reply endpoint
	EventAddr string // publish/subscribe endpoint
	Version   string
}

// Registry is the worker-discovery interface. A nil Registry is valid
// everywhere one is accepted and means discovery is not in use.
type Registry interface {
	Register(name string, instance WorkerInstance, ttl int64) error
	Deregister(name string, addr string) error
	Discover(name string) ([]WorkerInstance, error)
	Watch(name string) <-chan []WorkerInstance
}
