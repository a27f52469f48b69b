package export

import (
	"bytes"
	"testing"
	"time"

	"usergrid/internal/domain"
	"usergrid/internal/layout"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestUsers_EmitsHeaderAndRowsForVisibleColumns(t *testing.T) {
	cols := layout.DefaultColumns()
	// hide phone: it must not appear in the workbook
	for i := range cols {
		if cols[i].ID == "phone" {
			cols[i].Visible = false
		}
	}

	joined := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := []*domain.User{
		{ID: "u1", UserAccount: "alice", Nickname: "Al", Email: "a@example.com", Phone: "123", Role: domain.RoleStaffAdmin, IsActive: true, IsOnline: true, DateJoined: joined},
		{ID: "u2", UserAccount: "bob", FirstName: "Bob", LastName: "Jones", Role: domain.RoleGuest, DateJoined: joined},
	}

	data, err := Users(cols, rows)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows("Users")
	require.NoError(t, err)
	require.Len(t, got, 3) // header + two rows

	require.Equal(t, "Account", got[0][0])
	require.NotContains(t, got[0], "Phone")
	require.Contains(t, got[0], "Email")

	require.Equal(t, "alice", got[1][0])
	require.Equal(t, "Al", got[1][1])
	require.Equal(t, "STAFF_ADMIN", got[1][4])
	require.Equal(t, "bob", got[2][0])
	require.Equal(t, "Bob Jones", got[2][1])
}

func TestUsers_EmptyPageStillHasHeader(t *testing.T) {
	data, err := Users(layout.DefaultColumns(), nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows("Users")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestSnapshotName(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	a := SnapshotName(now)
	b := SnapshotName(now)
	require.Contains(t, a, "users-20250301-093000-")
	require.NotEqual(t, a, b)
}
