package common

import "hash/fnv"

// Hash32 maps data onto a point of the 32-bit address circle. The sharding
// algorithm uses it to locate entries and agents in a DHT space.
func Hash32(data []byte) uint32 {
	h := fnv.New32a()

	h.Write(data)

	return h.Sum32()
}
