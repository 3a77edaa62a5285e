package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lisafeets/callguard/internal/auth"
	"github.com/lisafeets/callguard/internal/domain"
	"github.com/lisafeets/callguard/internal/repository"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ErrForbidden 请求者对目标 senior 没有访问权限
var ErrForbidden = errors.New("no active family connection")

// SummaryRequest 活动汇总查询
type SummaryRequest struct {
	RequesterID   string
	RequesterRole string
	TargetID      string // guardian 查询他人时指定；空表示查自己
	Start         time.Time
	End           time.Time
}

// SummaryService 每日活动汇总
type SummaryService interface {
	DailySummaries(ctx context.Context, req SummaryRequest) ([]domain.DailySummary, error)
	ExportXLSX(ctx context.Context, req SummaryRequest) ([]byte, error)
}

type summaryService struct {
	activityRepo repository.ActivityRepository
	familyRepo   repository.FamilyRepository
	logger       *zap.Logger
}

// NewSummaryService 创建汇总服务
func NewSummaryService(
	activityRepo repository.ActivityRepository,
	familyRepo repository.FamilyRepository,
	logger *zap.Logger,
) SummaryService {
	return &summaryService{
		activityRepo: activityRepo,
		familyRepo:   familyRepo,
		logger:       logger,
	}
}

// DailySummaries 查询日期范围内的每日聚合
// senior 只能查自己；guardian 查目标 senior 需有 active 关系。
func (s *summaryService) DailySummaries(ctx context.Context, req SummaryRequest) ([]domain.DailySummary, error) {
	ownerID, err := s.resolveOwner(ctx, req)
	if err != nil {
		return nil, err
	}
	summaries, err := s.activityRepo.DailySummary(ctx, ownerID, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("daily summaries: %w", err)
	}
	return summaries, nil
}

// ExportXLSX 将同一份汇总导出为 xlsx（监护人下载周报用）
func (s *summaryService) ExportXLSX(ctx context.Context, req SummaryRequest) ([]byte, error) {
	summaries, err := s.DailySummaries(ctx, req)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Activity"
	f.SetSheetName(f.GetSheetName(0), sheet)

	headers := []string{"Date", "Total Calls", "Total SMS", "Unknown Calls", "Unknown SMS", "Suspicious", "Avg Call Duration (s)"}
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for row, sum := range summaries {
		values := []interface{}{
			sum.Date, sum.TotalCalls, sum.TotalSMS, sum.UnknownCalls,
			sum.UnknownSMS, sum.SuspiciousCount, sum.AvgCallDuration,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *summaryService) resolveOwner(ctx context.Context, req SummaryRequest) (string, error) {
	if req.TargetID == "" || req.TargetID == req.RequesterID {
		return req.RequesterID, nil
	}
	if req.RequesterRole != auth.RoleGuardian {
		return "", ErrForbidden
	}
	ok, err := s.familyRepo.HasActiveConnection(ctx, req.RequesterID, req.TargetID)
	if err != nil {
		return "", fmt.Errorf("connection check: %w", err)
	}
	if !ok {
		return "", ErrForbidden
	}
	return req.TargetID, nil
}
