package middleware

import (
	"errors"
	"fmt"

	pkgError "github.com/AzielCF/az-cache/pkg/error"
	"github.com/AzielCF/az-cache/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			err := recover()
			if err != nil {
				var res utils.ResponseData
				res.Status = 500
				res.Code = "INTERNAL_SERVER_ERROR"
				res.Message = fmt.Sprintf("%v", err)

				if e, ok := err.(error); ok {
					var generic pkgError.GenericError
					if errors.As(e, &generic) {
						res.Status = generic.StatusCode()
						res.Code = generic.ErrCode()
						res.Message = generic.Error()
					}
					var stageErr *pkgError.StageError
					if errors.As(e, &stageErr) && stageErr.Details != nil {
						res.Results = stageErr.Details
					}
				}

				if res.Status >= 500 {
					logrus.Errorf("[REST] panic recovered: %v", err)
				} else {
					logrus.Debugf("[REST] request failed: %s", res.Message)
				}

				_ = ctx.Status(res.Status).JSON(res)
			}
		}()

		return ctx.Next()
	}
}
