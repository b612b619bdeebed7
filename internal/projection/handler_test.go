package projection

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/aevon-lab/asof/internal/core/snapshot"
	storagemocks "github.com/aevon-lab/asof/internal/mocks/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ownerStore combines the mocked store with owner reads.
type ownerStore struct {
	*storagemocks.SnapshotStore
	*storagemocks.OwnerReader
}

func TestService_HandleOwnerSnapshots_StatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	computedAt := time.Date(2026, 2, 7, 10, 0, 0, 0, time.UTC)
	direct := &snapshot.Record{
		ID:         "01J0000000000000000000000A",
		Lane:       identity.DirectLane(report1),
		Checkpoint: 3,
		State:      json.RawMessage(`{"metrics":{}}`),
		ComputedAt: computedAt,
	}
	join := &snapshot.Record{
		ID:         "01J0000000000000000000000B",
		Lane:       identity.JoinLane(report1, order7),
		Checkpoint: 2,
		Reverted:   []int64{1},
		State:      json.RawMessage(`{"metrics":{}}`),
		ComputedAt: computedAt,
	}

	tests := []struct {
		name           string
		path           string
		expectedStatus int
		configure      func(reader *storagemocks.OwnerReader)
		check          func(t *testing.T, body []byte)
	}{
		{
			name:           "stored lanes returns 200 with dependency edges",
			path:           "/v1/snapshots/Report/1",
			expectedStatus: http.StatusOK,
			configure: func(reader *storagemocks.OwnerReader) {
				reader.EXPECT().LoadByOwner(mock.Anything, report1).Return([]*snapshot.Record{direct, join}, nil).Once()
			},
			check: func(t *testing.T, body []byte) {
				var resp OwnerSnapshots
				require.NoError(t, json.Unmarshal(body, &resp))
				require.Equal(t, report1, resp.Owner)
				require.Len(t, resp.Lanes, 2)
				require.Equal(t, int64(3), resp.Lanes[0].Checkpoint)
				require.Equal(t, []int64{1}, resp.Lanes[1].Reverted)
				require.Equal(t, []identity.Identity{order7}, resp.DependsOn)
			},
		},
		{
			name:           "owner without snapshots returns 404",
			path:           "/v1/snapshots/Report/2",
			expectedStatus: http.StatusNotFound,
			configure: func(reader *storagemocks.OwnerReader) {
				reader.EXPECT().LoadByOwner(mock.Anything, identity.New("Report", "2")).Return(nil, nil).Once()
			},
		},
		{
			name:           "invalid owner returns 400",
			path:           "/v1/snapshots/%20/1",
			expectedStatus: http.StatusBadRequest,
			configure:      func(_ *storagemocks.OwnerReader) {},
		},
		{
			name:           "store error returns 500",
			path:           "/v1/snapshots/Report/1",
			expectedStatus: http.StatusInternalServerError,
			configure: func(reader *storagemocks.OwnerReader) {
				reader.EXPECT().LoadByOwner(mock.Anything, report1).Return(nil, fmt.Errorf("db failure")).Once()
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := ownerStore{storagemocks.NewSnapshotStore(t), storagemocks.NewOwnerReader(t)}
			tc.configure(store.OwnerReader)

			svc := NewService(nil, store, 0)
			r := gin.New()
			svc.RegisterRoutes(r)

			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)

			if resp.Code != tc.expectedStatus {
				t.Logf("unexpected response body: %s", resp.Body.String())
			}
			require.Equal(t, tc.expectedStatus, resp.Code)
			if tc.check != nil {
				tc.check(t, resp.Body.Bytes())
			}
		})
	}
}

func TestService_HandleLaneSnapshot_StatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	lane := identity.JoinLane(report1, order7)
	rec := &snapshot.Record{
		ID:         "01J0000000000000000000000B",
		Lane:       lane,
		Checkpoint: 2,
		State:      json.RawMessage(`{"metrics":{}}`),
	}

	tests := []struct {
		name           string
		path           string
		expectedStatus int
		configure      func(store *storagemocks.SnapshotStore)
	}{
		{
			name:           "stored join lane returns 200",
			path:           "/v1/snapshots/Report/1/lanes/Order/7",
			expectedStatus: http.StatusOK,
			configure: func(store *storagemocks.SnapshotStore) {
				store.EXPECT().LoadLatest(mock.Anything, lane).Return(rec, nil).Once()
			},
		},
		{
			name:           "direct lane addressed by owner as source",
			path:           "/v1/snapshots/Order/7/lanes/Order/7",
			expectedStatus: http.StatusNotFound,
			configure: func(store *storagemocks.SnapshotStore) {
				store.EXPECT().LoadLatest(mock.Anything, identity.DirectLane(order7)).Return(nil, nil).Once()
			},
		},
		{
			name:           "store error returns 500",
			path:           "/v1/snapshots/Report/1/lanes/Order/7",
			expectedStatus: http.StatusInternalServerError,
			configure: func(store *storagemocks.SnapshotStore) {
				store.EXPECT().LoadLatest(mock.Anything, lane).Return(nil, fmt.Errorf("db failure")).Once()
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := storagemocks.NewSnapshotStore(t)
			tc.configure(store)

			svc := NewService(nil, store, 0)
			r := gin.New()
			svc.RegisterRoutes(r)

			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)

			if resp.Code != tc.expectedStatus {
				t.Logf("unexpected response body: %s", resp.Body.String())
			}
			require.Equal(t, tc.expectedStatus, resp.Code)
		})
	}
}

func TestService_HandleOwnerSnapshots_StoreWithoutOwnerReads(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := NewService(nil, storagemocks.NewSnapshotStore(t), 0)
	r := gin.New()
	svc.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/v1/snapshots/Report/1", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusNotImplemented, resp.Code)
}
