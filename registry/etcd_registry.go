// etcd-backed implementation of the Registry interface.
//
//	Key:   /playlink/{name}/{Addr}
//	Value: JSON-encoded WorkerInstance
//
// Registration uses TTL-based leases with background keepalive: if the
// worker dies, its lease expires and the entry disappears on its own, so the
// skill never discovers a ghost worker.
package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/playlink/"

// EtcdRegistry implements Registry using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Register stores a worker instance under a TTL lease and starts background
// keepalive. The lease id stays local so one registry instance can serve
// several workers without racing.
func (r *EtcdRegistry) Register(name string, instance WorkerInstance, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, keyPrefix+name+"/"+instance.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Drain keepalive responses so the channel never fills up.
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes a worker instance; called on graceful worker shutdown.
func (r *EtcdRegistry) Deregister(name string, addr string) error {
	_, err := r.client.Delete(context.TODO(), keyPrefix+name+"/"+addr)
	return err
}

// Discover returns the currently registered instances for a worker name.
func (r *EtcdRegistry) Discover(name string) ([]WorkerInstance, error) {
	resp, err := r.client.Get(context.TODO(), keyPrefix+name+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]WorkerInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance WorkerInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			continue // skip malformed entries
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch emits the updated instance list whenever registrations change, so a
// worker restarting on a new port shows up without polling.
func (r *EtcdRegistry) Watch(name string) <-chan []WorkerInstance {
	ctx := context.TODO()
	ch := make(chan []WorkerInstance, 1)

	go func() {
		watchChan := r.client.Watch(ctx, keyPrefix+name+"/", clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the full list on any change rather than folding
			// individual events.
			instances, _ := r.Discover(name)
			ch <- instances
		}
	}()

	return ch
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
