package gitengine

import (
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GraphAheadBehind counts commits reachable from local but not remote
// (ahead) and from remote but not local (behind), the same relation as
// `git rev-list --left-right --count local...remote`. Unrelated
// histories count every commit on both sides.
func (e *Engine) GraphAheadBehind(local, remote plumbing.Hash) (ahead, behind int, err error) {
	if local == remote {
		return 0, 0, nil
	}

	localAncestors, err := e.ancestorSet(local)
	if err != nil {
		return 0, 0, opError("ahead-behind", "", err)
	}
	remoteAncestors, err := e.ancestorSet(remote)
	if err != nil {
		return 0, 0, opError("ahead-behind", "", err)
	}

	for h := range localAncestors {
		if _, ok := remoteAncestors[h]; !ok {
			ahead++
		}
	}
	for h := range remoteAncestors {
		if _, ok := localAncestors[h]; !ok {
			behind++
		}
	}
	return ahead, behind, nil
}

// ancestorSet collects tip and every ancestor commit hash.
func (e *Engine) ancestorSet(tip plumbing.Hash) (map[plumbing.Hash]struct{}, error) {
	commit, err := e.repo.CommitObject(tip)
	if err != nil {
		return nil, err
	}

	seen := make(map[plumbing.Hash]struct{})
	queue := []*object.Commit{commit}
	seen[commit.Hash] = struct{}{}

	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]

		for i, parentHash := range c.ParentHashes {
			if _, ok := seen[parentHash]; ok {
				continue
			}
			seen[parentHash] = struct{}{}
			parent, err := c.Parent(i)
			if err != nil {
				return nil, err
			}
			queue = append(queue, parent)
		}
	}
	return seen, nil
}
