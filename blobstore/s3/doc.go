// Package s3 provides an S3-backed blobstore.BlobStore for index artifacts,
// plus a DynamoDB-backed "current generation" pointer for deployments where
// rebuilt artifacts are uploaded under versioned names and flipped atomically.
// CurrentView adapts the pointer back to a blobstore.BlobStore so a shard
// registry discovers and reloads through it under stable names.
package s3
