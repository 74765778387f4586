package api

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestErrorKinds(t *testing.T) {
	Convey("Given API errors", t, func() {
		cause := errors.New("unexpected EOF")

		Convey("Then WrapKind should match both kind and cause", func() {
			err := WrapKind("api.create_agent", ErrBadRequest, cause)
			So(errors.Is(err, ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.create_agent: bad request: unexpected EOF")
		})

		Convey("Then NewKind should carry only the kind", func() {
			err := NewKind("api.admin", ErrUnauthorized)
			So(errors.Is(err, ErrUnauthorized), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.admin: admin token required")
			So(errors.Is(WrapKind("op", ErrBadRequest, nil), ErrBadRequest), ShouldBeTrue)
		})

		Convey("Then Wrap should keep nil as nil", func() {
			So(Wrap("op", nil), ShouldBeNil)
			var apiErr *Error
			So(errors.As(Wrap("op", cause), &apiErr), ShouldBeTrue)
			So(apiErr.Op, ShouldEqual, "op")
		})
	})
}
