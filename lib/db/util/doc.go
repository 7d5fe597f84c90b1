// Package util provides statistics helpers shared by the storage engines and
// the dispatch pool.
//
// The package contains:
//   - Stats / DistributionStats: Summaries (min, max, mean, standard deviation)
//     of a set of numbers, e.g. entries per map or workers per queue
//   - SizeHistogram: Power of two buckets for value sizes with median and
//     percentile estimates
//
// The engines use them to fill the metadata of db.DatabaseInfo, the pool uses
// DistributionStats to report how evenly workers are spread over queues.
package util
