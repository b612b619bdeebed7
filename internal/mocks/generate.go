package mocks

//go:generate mockery --name EventSource --srcpkg github.com/aevon-lab/asof/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
//go:generate mockery --name SnapshotStore --srcpkg github.com/aevon-lab/asof/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
//go:generate mockery --name OwnerReader --srcpkg github.com/aevon-lab/asof/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
//go:generate mockery --name LaneLister --srcpkg github.com/aevon-lab/asof/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
