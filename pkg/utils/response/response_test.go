package response_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/scholar-x/pkg/utils/errors"
	"github.com/kart-io/scholar-x/pkg/utils/response"
)

func TestSuccess(t *testing.T) {
	r := response.Success(map[string]string{"answer": "ROS 2 is a robotics framework"})

	assert.Equal(t, 0, r.Code)
	assert.Equal(t, http.StatusOK, r.HTTPCode)
	assert.Equal(t, "success", r.Message)
	assert.NotNil(t, r.Data)
	assert.True(t, r.IsSuccess())
}

func TestErr(t *testing.T) {
	r := response.Err(errors.ErrRAGNoResults)

	assert.Equal(t, errors.ErrRAGNoResults.Code, r.Code)
	assert.Equal(t, http.StatusNotFound, r.HTTPCode)
	assert.Equal(t, "No results found", r.Message)
	assert.Nil(t, r.Data)
	assert.False(t, r.IsSuccess())
}

func TestErrNil(t *testing.T) {
	r := response.Err(nil)
	assert.True(t, r.IsSuccess())
}

func TestErrWithLang(t *testing.T) {
	r := response.ErrWithLang(errors.ErrRAGNoResults, "zh")
	assert.Equal(t, "未找到结果", r.Message)
}

func TestHTTPStatusLookup(t *testing.T) {
	// Registered code resolves through the errno registry.
	r := &response.Response{Code: errors.ErrRAGQueryTimeout.Code}
	assert.Equal(t, http.StatusRequestTimeout, r.HTTPStatus())

	// Unregistered code falls back to its category.
	unregistered := errors.MakeCode(errors.ServiceRAG, errors.CategoryRequest, 999)
	r = &response.Response{Code: unregistered}
	assert.Equal(t, http.StatusBadRequest, r.HTTPStatus())
}

func TestPage(t *testing.T) {
	items := []string{"a", "b", "c"}
	r := response.Page(items, 25, 2, 10)

	page, ok := r.Data.(*response.PageData)
	assert.True(t, ok)
	assert.Equal(t, int64(25), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 10, page.PageSize)
	assert.Equal(t, 3, page.TotalPages)
}

func TestWithRequestID(t *testing.T) {
	r := response.Success(nil).WithRequestID("01ARZ3NDEKTSV4RRFFQ69G5FAV").WithTimestamp(1700000000000)
	assert.Equal(t, "01ARZ3NDEKTSV4RRFFQ69G5FAV", r.RequestID)
	assert.Equal(t, int64(1700000000000), r.Timestamp)
}
