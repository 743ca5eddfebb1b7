package chain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateSeedDictShapeAccepts(t *testing.T) {
	tbl := &RoundTables{
		UpdateParticipants: [][]byte{[]byte("update-b"), []byte("update-c")},
		SeedDict: []SeedShare{
			{SumPublicKey: []byte("sum-a"), UpdatePublicKey: []byte("update-b")},
			{SumPublicKey: []byte("sum-a"), UpdatePublicKey: []byte("update-c")},
		},
	}
	require.NoError(t, tbl.ValidateSeedDictShape())
}

func TestValidateSeedDictShapeAcceptsAfterSumDictEmptied(t *testing.T) {
	// Sum2 has already removed every entry from SumDict via submit_mask,
	// but SeedDict still reflects what was frozen during Update.
	tbl := &RoundTables{
		SumDict:            nil,
		UpdateParticipants: [][]byte{[]byte("update-b")},
		SeedDict: []SeedShare{
			{SumPublicKey: []byte("sum-a"), UpdatePublicKey: []byte("update-b")},
		},
	}
	require.NoError(t, tbl.ValidateSeedDictShape())
}

func TestValidateSeedDictShapeRejectsMissingShare(t *testing.T) {
	tbl := &RoundTables{
		UpdateParticipants: [][]byte{[]byte("update-b"), []byte("update-c")},
		SeedDict: []SeedShare{
			{SumPublicKey: []byte("sum-a"), UpdatePublicKey: []byte("update-b")},
		},
	}
	err := tbl.ValidateSeedDictShape()
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing share")
}

func TestValidateSeedDictShapeRejectsUnexpectedShare(t *testing.T) {
	tbl := &RoundTables{
		UpdateParticipants: [][]byte{[]byte("update-b")},
		SeedDict: []SeedShare{
			{SumPublicKey: []byte("sum-a"), UpdatePublicKey: []byte("update-b")},
			{SumPublicKey: []byte("sum-a"), UpdatePublicKey: []byte("stranger")},
		},
	}
	err := tbl.ValidateSeedDictShape()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected share")
}

func TestValidateSeedDictShapeAcceptsEmpty(t *testing.T) {
	require.NoError(t, (&RoundTables{}).ValidateSeedDictShape())
}
