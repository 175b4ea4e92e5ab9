package mocks

import "github.com/stretchr/testify/mock"

// PollSchedulerMock is a testify mock of port.PollScheduler.
type PollSchedulerMock struct {
	mock.Mock
}

type PollSchedulerMock_Expecter struct {
	mock *mock.Mock
}

func (_m *PollSchedulerMock) EXPECT() *PollSchedulerMock_Expecter {
	return &PollSchedulerMock_Expecter{mock: &_m.Mock}
}

func (_m *PollSchedulerMock) Schedule(jobID string) {
	_m.Called(jobID)
}

type PollSchedulerMock_Schedule_Call struct {
	*mock.Call
}

func (_e *PollSchedulerMock_Expecter) Schedule(jobID interface{}) *PollSchedulerMock_Schedule_Call {
	return &PollSchedulerMock_Schedule_Call{Call: _e.mock.On("Schedule", jobID)}
}

func (_c *PollSchedulerMock_Schedule_Call) Return() *PollSchedulerMock_Schedule_Call {
	_c.Call.Return()
	return _c
}

func NewPollSchedulerMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *PollSchedulerMock {
	m := &PollSchedulerMock{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
