package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
)

// TranslationGatewayMock is a testify mock of port.TranslationGateway.
type TranslationGatewayMock struct {
	mock.Mock
}

type TranslationGatewayMock_Expecter struct {
	mock *mock.Mock
}

func (_m *TranslationGatewayMock) EXPECT() *TranslationGatewayMock_Expecter {
	return &TranslationGatewayMock_Expecter{mock: &_m.Mock}
}

func (_m *TranslationGatewayMock) Submit(ctx context.Context, sourceReference string, outputs []domain.OutputFormat) (string, error) {
	ret := _m.Called(ctx, sourceReference, outputs)

	if rf, ok := ret.Get(0).(func(context.Context, string, []domain.OutputFormat) (string, error)); ok {
		return rf(ctx, sourceReference, outputs)
	}
	return ret.String(0), ret.Error(1)
}

type TranslationGatewayMock_Submit_Call struct {
	*mock.Call
}

func (_e *TranslationGatewayMock_Expecter) Submit(ctx interface{}, sourceReference interface{}, outputs interface{}) *TranslationGatewayMock_Submit_Call {
	return &TranslationGatewayMock_Submit_Call{Call: _e.mock.On("Submit", ctx, sourceReference, outputs)}
}

func (_c *TranslationGatewayMock_Submit_Call) Return(externalJobID string, err error) *TranslationGatewayMock_Submit_Call {
	_c.Call.Return(externalJobID, err)
	return _c
}

func (_c *TranslationGatewayMock_Submit_Call) RunAndReturn(run func(context.Context, string, []domain.OutputFormat) (string, error)) *TranslationGatewayMock_Submit_Call {
	_c.Call.Return(run)
	return _c
}

func (_m *TranslationGatewayMock) FetchStatus(ctx context.Context, externalJobID string) (domain.StatusReport, error) {
	ret := _m.Called(ctx, externalJobID)

	if rf, ok := ret.Get(0).(func(context.Context, string) (domain.StatusReport, error)); ok {
		return rf(ctx, externalJobID)
	}
	var r0 domain.StatusReport
	if v := ret.Get(0); v != nil {
		r0 = v.(domain.StatusReport)
	}
	return r0, ret.Error(1)
}

type TranslationGatewayMock_FetchStatus_Call struct {
	*mock.Call
}

func (_e *TranslationGatewayMock_Expecter) FetchStatus(ctx interface{}, externalJobID interface{}) *TranslationGatewayMock_FetchStatus_Call {
	return &TranslationGatewayMock_FetchStatus_Call{Call: _e.mock.On("FetchStatus", ctx, externalJobID)}
}

func (_c *TranslationGatewayMock_FetchStatus_Call) Return(report domain.StatusReport, err error) *TranslationGatewayMock_FetchStatus_Call {
	_c.Call.Return(report, err)
	return _c
}

func (_c *TranslationGatewayMock_FetchStatus_Call) RunAndReturn(run func(context.Context, string) (domain.StatusReport, error)) *TranslationGatewayMock_FetchStatus_Call {
	_c.Call.Return(run)
	return _c
}

func (_m *TranslationGatewayMock) Cancel(ctx context.Context, externalJobID string) error {
	ret := _m.Called(ctx, externalJobID)

	if rf, ok := ret.Get(0).(func(context.Context, string) error); ok {
		return rf(ctx, externalJobID)
	}
	return ret.Error(0)
}

type TranslationGatewayMock_Cancel_Call struct {
	*mock.Call
}

func (_e *TranslationGatewayMock_Expecter) Cancel(ctx interface{}, externalJobID interface{}) *TranslationGatewayMock_Cancel_Call {
	return &TranslationGatewayMock_Cancel_Call{Call: _e.mock.On("Cancel", ctx, externalJobID)}
}

func (_c *TranslationGatewayMock_Cancel_Call) Return(err error) *TranslationGatewayMock_Cancel_Call {
	_c.Call.Return(err)
	return _c
}

// NewTranslationGatewayMock registers a cleanup that asserts every expectation was met.
func NewTranslationGatewayMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *TranslationGatewayMock {
	m := &TranslationGatewayMock{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
