package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"docverify/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestVerificationWorkbook(t *testing.T) {
	verifiedAt := time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC)
	workers := []domain.WorkerDocumentState{
		{
			WorkerID:     "w1",
			MobileNumber: "9876543210",
			Personal: domain.DocumentState{Present: true, Fields: domain.ExtractedFields{
				"name": domain.StringPtr("Babu Khan"), "dob": domain.StringPtr("01-12-1987"),
			}},
			Educational: domain.DocumentState{Present: true, Fields: domain.ExtractedFields{
				"name": domain.StringPtr("BABU KHAN"), "dob": domain.StringPtr("01-12-1987"),
				"qualification": domain.StringPtr("Class 10"),
			}},
			VerificationStatus: domain.StatusVerified,
			VerifiedAt:         &verifiedAt,
		},
		{
			WorkerID:           "w2",
			MobileNumber:       "9000000000",
			Personal:           domain.DocumentState{Present: true, Fields: domain.ExtractedFields{"name": nil}},
			VerificationStatus: domain.StatusPending,
			VerificationErrors: strings.Repeat("x", 400),
		},
	}

	data, err := VerificationWorkbook(workers)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Headers, rows[0])

	assert.Equal(t, []string{
		"w1", "9876543210", "Babu Khan", "01-12-1987", "BABU KHAN", "01-12-1987",
		"Class 10", "verified", "2024-05-02T10:30:00Z",
	}, rows[1])

	assert.Equal(t, "w2", rows[2][0])
	assert.Equal(t, "", rows[2][2])
	assert.Equal(t, string(domain.StateAwaitingDocuments), rows[2][7])
	assert.Len(t, []rune(rows[2][9]), 250)
}

func TestVerificationWorkbookEmpty(t *testing.T) {
	data, err := VerificationWorkbook(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
