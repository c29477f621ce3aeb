package sharding

import "sync"

type ShardRouter struct {
	ShardCount int // Number of shards
}

func NewShardRouter(shardCount int) *ShardRouter {
	if shardCount < 1 {
		shardCount = 1
	}
	return &ShardRouter{ShardCount: shardCount}
}

func (r *ShardRouter) GetShard(id int64) int {
	shardIndex := id % int64(r.ShardCount)
	if shardIndex < 0 {
		shardIndex = -shardIndex
	}
	return int(shardIndex)
}

// StoreLocks serializes inventory work per store. Stores are spread over a
// fixed set of mutexes by the shard router, so two stores only wait on each
// other when they land on the same stripe.
type StoreLocks struct {
	router *ShardRouter
	locks  []sync.Mutex
}

func NewStoreLocks(stripes int) *StoreLocks {
	router := NewShardRouter(stripes)
	return &StoreLocks{
		router: router,
		locks:  make([]sync.Mutex, router.ShardCount),
	}
}

// Lock blocks until the store's stripe is free and returns the matching unlock.
func (l *StoreLocks) Lock(storeID int64) (unlock func()) {
	mu := &l.locks[l.router.GetShard(storeID)]
	mu.Lock()
	return mu.Unlock
}
