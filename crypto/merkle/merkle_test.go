package merkle

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func testLeaves(n int) []common.Hash {
	leaves := make([]common.Hash, n)
	for i := range leaves {
		leaves[i] = ethcrypto.Keccak256Hash([]byte{byte(i), 0x5a})
	}
	return leaves
}

func TestHashPairIsOrderIndependent(t *testing.T) {
	a := common.HexToHash("0x01")
	b := common.HexToHash("0x02")
	require.Equal(t, HashPair(a, b), HashPair(b, a))
	require.Equal(t, ethcrypto.Keccak256Hash(a[:], b[:]), HashPair(b, a))
}

func TestTreeProofsVerifyForEveryLeaf(t *testing.T) {
	for _, size := range []int{1, 2, 3, 4, 5, 7, 15, 16, 33} {
		leaves := testLeaves(size)
		tree, err := NewTree(leaves)
		require.NoError(t, err)
		require.Equal(t, size, tree.Len())
		for i, leaf := range leaves {
			proof, err := tree.ProofAt(i)
			require.NoError(t, err)
			require.Truef(t, Verify(tree.Root(), leaf, proof), "size %d leaf %d", size, i)
		}
	}
}

func TestTreeSingleLeafRootIsLeaf(t *testing.T) {
	leaves := testLeaves(1)
	tree, err := NewTree(leaves)
	require.NoError(t, err)
	require.Equal(t, leaves[0], tree.Root())
	proof, err := tree.ProofAt(0)
	require.NoError(t, err)
	require.Empty(t, proof)
	require.True(t, Verify(tree.Root(), leaves[0], proof))
	require.ErrorIs(t, VerifyProof(tree.Root(), leaves[0], proof), ErrEmptyProof)
}

func TestTreeOddNodeIsPromoted(t *testing.T) {
	leaves := testLeaves(3)
	tree, err := NewTree(leaves)
	require.NoError(t, err)
	expected := HashPair(HashPair(leaves[0], leaves[1]), leaves[2])
	require.Equal(t, expected, tree.Root())
}

func TestVerifyProofRejectsWrongLeafAndRoot(t *testing.T) {
	leaves := testLeaves(8)
	tree, err := NewTree(leaves)
	require.NoError(t, err)
	proof, err := tree.Proof(leaves[3])
	require.NoError(t, err)

	require.NoError(t, VerifyProof(tree.Root(), leaves[3], proof))
	require.True(t, errors.Is(VerifyProof(tree.Root(), leaves[4], proof), ErrInvalidProof))
	require.ErrorIs(t, VerifyProof(common.Hash{}, leaves[3], proof), ErrInvalidProof)
	require.ErrorIs(t, VerifyProof(tree.Root(), leaves[3], []common.Hash{{}}), ErrInvalidProof)
}

func TestTreeErrors(t *testing.T) {
	_, err := NewTree(nil)
	require.ErrorIs(t, err, ErrNoLeaves)

	tree, err := NewTree(testLeaves(2))
	require.NoError(t, err)
	_, err = tree.ProofAt(2)
	require.ErrorIs(t, err, ErrLeafNotFound)
	_, err = tree.Proof(common.HexToHash("0xdead"))
	require.ErrorIs(t, err, ErrLeafNotFound)
}
