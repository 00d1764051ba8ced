// Package embed batches chunk texts into capped embedding-provider calls
// under a hard rate limit.
//
// A Batcher partitions input into fixed-size batches, paces consecutive
// provider calls through a token-bucket Limiter (pacing is a policy object,
// not a sleep), and retries transient failures with exponential backoff up
// to an elapsed-time ceiling. Permanent provider errors, as classified by
// ai.IsPermanent, fail immediately.
package embed
