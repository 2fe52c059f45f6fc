package services

import (
	"net/http"

	apperrors "allocator/internal/errors"
)

// Allocation service errors
var (
	ErrNoPendingWorkbook = apperrors.New(http.StatusConflict, "NO_PENDING_WORKBOOK", "No workbook is waiting for a sheet selection")
)
