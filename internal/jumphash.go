package internal

// JumpHash maps key to a bucket in [0, numBuckets) using Google's jump
// consistent hash (https://arxiv.org/abs/1406.2294). Growing the bucket
// count by one reassigns only 1/n of the keys, which keeps most keys on
// the same server when the server list changes.
//
// Ported from github.com/dgryski/go-jump.
func JumpHash(key uint64, numBuckets int) int {
	if numBuckets <= 0 {
		return 0
	}

	var bucket int64 = -1
	var next int64
	for next < int64(numBuckets) {
		bucket = next
		key = key*2862933555777941757 + 1
		next = int64(float64(bucket+1) * (float64(int64(1)<<31) / float64((key>>33)+1)))
	}
	return int(bucket)
}
