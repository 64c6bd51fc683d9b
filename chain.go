package serialdisk

import (
	"github.com/aligator/serialdisk/checkpoint"
)

// Chain follows the FAT from first and returns all clusters of the chain.
//
// A link to a cluster outside of the data region or to a free, reserved or bad slot returns
// ErrBrokenChain. A cycle is a ContractViolation.
func (v *Volume) Chain(first Cluster) ([]Cluster, error) {
	if !v.layout.ValidCluster(first) {
		return nil, checkpoint.Wrapf(ErrBrokenChain, "first cluster %d outside of data region", first)
	}

	fat := v.fats[0]
	chain := []Cluster{first}
	visited := map[Cluster]bool{first: true}

	current := first
	for {
		entry := fat.Entry(current)
		switch {
		case entry.IsEOF():
			return chain, nil
		case entry.IsBad() || entry.IsReserved():
			return nil, checkpoint.Wrapf(ErrBrokenChain, "chain %d starts at a %v cluster", first, entry)
		case !entry.IsNext():
			return nil, checkpoint.Wrapf(ErrBrokenChain, "cluster %d of chain %d is %v", current, first, entry)
		case !v.layout.ValidCluster(entry.Next):
			return nil, checkpoint.Wrapf(ErrBrokenChain, "cluster %d links to %d outside of data region", current, entry.Next)
		case visited[entry.Next]:
			return nil, violationf("cycle in chain %d at cluster %d", first, entry.Next)
		}

		switch next := fat.Entry(entry.Next); {
		case next.IsBad() || next.IsReserved():
			return nil, checkpoint.Wrapf(ErrBrokenChain, "cluster %d of chain %d links to %v cluster %d", current, first, next, entry.Next)
		case !next.IsAllocated():
			return nil, checkpoint.Wrapf(ErrBrokenChain, "cluster %d links to %v cluster %d", current, next, entry.Next)
		}

		current = entry.Next
		visited[current] = true
		chain = append(chain, current)

		// Can only happen with a cycle which the visited check missed.
		if len(chain) > v.layout.Clusters {
			return nil, violationf("chain %d is longer than the volume", first)
		}
	}
}

// AllocateChain allocates a new chain of n clusters and returns its first cluster.
// The new clusters have no data yet.
func (v *Volume) AllocateChain(n int) (Cluster, error) {
	first, err := v.allocateChain(n)
	if err != nil {
		return 0, err
	}
	return first, v.notify(Event{Kind: EventStructure})
}

// allocateChain first looks for a contiguous run of n free clusters starting at cluster 2.
// If there is none, it links the first n free clusters in ascending order.
// The FAT is not touched if there are less than n free clusters.
func (v *Volume) allocateChain(n int) (Cluster, error) {
	if n <= 0 {
		return 0, checkpoint.Wrapf(ErrInvalidArgument, "cannot allocate %d clusters", n)
	}

	fat := v.fats[0]
	last := v.layout.LastCluster()

	var free []Cluster
	var runStart Cluster
	runLength := 0
	for c := FirstCluster; c <= last; c++ {
		if !fat.Entry(c).IsFree() {
			runLength = 0
			continue
		}

		free = append(free, c)
		if runLength == 0 {
			runStart = c
		}
		runLength++
		if runLength == n {
			v.linkClusters(clusterRun(runStart, n))
			return runStart, nil
		}
	}

	if len(free) < n {
		return 0, checkpoint.Wrapf(ErrOutOfSpace, "need %d clusters, %d free", n, len(free))
	}

	v.linkClusters(free[:n])
	return free[0], nil
}

func clusterRun(start Cluster, n int) []Cluster {
	run := make([]Cluster, n)
	for i := range run {
		run[i] = start + Cluster(i)
	}
	return run
}

// linkClusters writes the given clusters as one chain into every FAT.
func (v *Volume) linkClusters(clusters []Cluster) {
	for i, c := range clusters {
		if i == len(clusters)-1 {
			v.setEntry(c, EndOfChainEntry)
		} else {
			v.setEntry(c, NextEntry(clusters[i+1]))
		}
	}
}

// ExtendChain appends more clusters to the chain starting at first.
func (v *Volume) ExtendChain(first Cluster, more int) error {
	if _, err := v.extendChain(first, more); err != nil {
		return err
	}
	return v.notify(Event{Kind: EventStructure})
}

// extendChain returns the new clusters. Nothing changes if there is not enough space.
func (v *Volume) extendChain(first Cluster, more int) ([]Cluster, error) {
	chain, err := v.Chain(first)
	if err != nil {
		return nil, err
	}
	if more == 0 {
		return nil, nil
	}

	head, err := v.allocateChain(more)
	if err != nil {
		return nil, err
	}
	added, err := v.Chain(head)
	if err != nil {
		return nil, err
	}

	v.setEntry(chain[len(chain)-1], NextEntry(head))
	return added, nil
}

// TruncateChain keeps the first keep clusters of the chain and frees the rest.
// keep has to be at least 1, use FreeChain to drop a chain completely.
func (v *Volume) TruncateChain(first Cluster, keep int) error {
	if err := v.truncateChain(first, keep); err != nil {
		return err
	}
	return v.notify(Event{Kind: EventStructure})
}

func (v *Volume) truncateChain(first Cluster, keep int) error {
	if keep < 1 {
		return checkpoint.Wrapf(ErrInvalidArgument, "truncate to %d clusters", keep)
	}

	chain, err := v.Chain(first)
	if err != nil {
		return err
	}
	if keep >= len(chain) {
		return nil
	}

	v.setEntry(chain[keep-1], EndOfChainEntry)
	v.release(chain[keep:])
	return nil
}

// FreeChain frees every cluster of the chain.
func (v *Volume) FreeChain(first Cluster) error {
	if err := v.freeChain(first); err != nil {
		return err
	}
	return v.notify(Event{Kind: EventStructure})
}

func (v *Volume) freeChain(first Cluster) error {
	chain, err := v.Chain(first)
	if err != nil {
		return err
	}
	v.release(chain)
	return nil
}

// release marks the clusters free and drops their data.
func (v *Volume) release(clusters []Cluster) {
	for _, c := range clusters {
		v.setEntry(c, FreeEntry)
		v.dropCluster(c)
	}
}
