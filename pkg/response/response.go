// Package response renders the success envelope {ok:true, data:...}.
// Failures are rendered by middleware.ErrorHandler.
package response

import (
	"github.com/labstack/echo/v4"
)

type Body struct {
	OK   bool        `json:"ok"`
	Data interface{} `json:"data"`
}

func JSON(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Body{OK: true, Data: data})
}
