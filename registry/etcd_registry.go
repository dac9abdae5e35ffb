// etcd backed Registry implementation.
//
// Keys follow /gostomp/{cluster}/{host:port} with a JSON encoded endpoint as
// value. Registration attaches a TTL lease kept alive in the background, so
// a dead broker drops out of the cluster once its lease expires.
package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"

	"gostomp/failover"
)

const keyPrefix = "/gostomp/"

// EtcdRegistry implements Registry on an etcd v3 cluster.
type EtcdRegistry struct {
	client *clientv3.Client
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

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}

func clusterPrefix(cluster string) string {
	return keyPrefix + cluster + "/"
}

// Register writes the endpoint under a TTL lease and starts the keepalive
// that renews it.
func (r *EtcdRegistry) Register(cluster string, endpoint failover.Endpoint, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(endpoint)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, clusterPrefix(cluster)+endpoint.Addr(), string(val), clientv3.WithLease(lease.ID))
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

// Deregister removes the endpoint entry.
func (r *EtcdRegistry) Deregister(cluster string, endpoint failover.Endpoint) error {
	_, err := r.client.Delete(context.TODO(), clusterPrefix(cluster)+endpoint.Addr())
	return err
}

// Discover lists the endpoints currently registered for the cluster.
func (r *EtcdRegistry) Discover(cluster string) ([]failover.Endpoint, error) {
	resp, err := r.client.Get(context.TODO(), clusterPrefix(cluster), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	endpoints := make([]failover.Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep failover.Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			continue // skip malformed entries
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// Watch re-reads the cluster on every change under its prefix and emits the
// full endpoint list.
func (r *EtcdRegistry) Watch(cluster string) <-chan []failover.Endpoint {
	ch := make(chan []failover.Endpoint, 1)

	go func() {
		watchChan := r.client.Watch(context.TODO(), clusterPrefix(cluster), clientv3.WithPrefix())
		for range watchChan {
			endpoints, err := r.Discover(cluster)
			if err != nil {
				continue
			}
			ch <- endpoints
		}
	}()

	return ch
}
