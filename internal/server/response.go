// Package server exposes the judge protocol over HTTP.
package server

import (
	"github.com/gin-gonic/gin"

	appErr "judged/pkg/errors"
)

// envelope is the wire shape of every response: err is null on
// success and the error kind name otherwise.
type envelope struct {
	Err  *string     `json:"err"`
	Data interface{} `json:"data"`
}

func writeOK(c *gin.Context, data interface{}) {
	c.JSON(200, envelope{Err: nil, Data: data})
}

func writeError(c *gin.Context, err error) {
	kind := appErr.KindOf(err)
	detail := err.Error()
	if e := appErr.GetError(err); e != nil {
		detail = e.Message
	}
	c.JSON(appErr.GetCode(err).HTTPStatus(), envelope{Err: &kind, Data: detail})
}
