// Package vecshard is the serving layer over IVF-PQ index artifacts: it
// discovers artifact blobs, holds one immutable index per shard key, routes
// search requests, and hot-reloads shards with an atomic pointer swap so that
// in-flight searches never observe a partially loaded index.
//
// # Basic Usage
//
//	store, _ := blobstore.NewLocalStore("/var/lib/vecshard")
//	reg := vecshard.NewRegistry(store)
//	if err := reg.Discover(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	svc := vecshard.NewService(reg, vecshard.WithDefaultShardKey("catalog"))
//	resp, err := svc.Search(ctx, &vecshard.SearchRequest{Query: vec, TopK: 10})
//
// Index construction is offline: build with ivfpq.Builder, write the artifact
// to the store, then call Reload to swap the new generation in.
package vecshard
