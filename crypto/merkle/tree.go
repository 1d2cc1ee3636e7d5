package merkle

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNoLeaves     = errors.New("merkle: tree requires at least one leaf")
	ErrLeafNotFound = errors.New("merkle: leaf not in tree")
)

// Tree is a fully materialised sorted-pair tree. Levels are stored bottom-up:
// levels[0] holds the leaves in insertion order and the last level holds the
// root. An odd node at the end of a level is promoted unchanged, matching the
// layout produced by merkletreejs with sortPairs enabled.
type Tree struct {
	levels [][]common.Hash
}

// NewTree builds the tree for the supplied leaf hashes.
func NewTree(leaves []common.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}
	level := make([]common.Hash, len(leaves))
	copy(level, leaves)
	levels := [][]common.Hash{level}
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, HashPair(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}
	return &Tree{levels: levels}, nil
}

// Root returns the tree root.
func (t *Tree) Root() common.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Len returns the number of leaves.
func (t *Tree) Len() int { return len(t.levels[0]) }

// Leaf returns the leaf stored at index i.
func (t *Tree) Leaf(i int) common.Hash { return t.levels[0][i] }

// ProofAt returns the sibling path for the leaf at index i. Promoted nodes
// contribute no sibling at that level.
func (t *Tree) ProofAt(i int) ([]common.Hash, error) {
	if i < 0 || i >= t.Len() {
		return nil, ErrLeafNotFound
	}
	var proof []common.Hash
	idx := i
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		idx /= 2
	}
	return proof, nil
}

// Proof looks up the first occurrence of leaf and returns its proof.
func (t *Tree) Proof(leaf common.Hash) ([]common.Hash, error) {
	for i, candidate := range t.levels[0] {
		if candidate == leaf {
			return t.ProofAt(i)
		}
	}
	return nil, ErrLeafNotFound
}
