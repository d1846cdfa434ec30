package validations

import (
	"context"
	"time"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	pkgError "github.com/AzielCF/az-cache/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateUpdateOptions(ctx context.Context, opts domainCache.UpdateOptions) error {
	err := validation.ValidateStructWithContext(ctx, &opts,
		validation.Field(&opts.Source, validation.Required, validation.In(
			domainCache.SourceManual,
			domainCache.SourceAuto,
			domainCache.SourceHotReload,
			domainCache.SourceEnv,
		)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateMonitorOptions(ctx context.Context, opts domainCache.MonitorOptions) error {
	err := validation.ValidateStructWithContext(ctx, &opts,
		validation.Field(&opts.ReportInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&opts.HistorySize, validation.Required, validation.Min(1)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	thresholds := opts.AlertThresholds
	err = validation.ValidateStructWithContext(ctx, &thresholds,
		validation.Field(&thresholds.HitRate, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&thresholds.MemoryUsage, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&thresholds.AverageResponseTime, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
