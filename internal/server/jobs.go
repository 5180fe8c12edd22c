package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/joseph-ayodele/tools-tracker/constants"
	"github.com/joseph-ayodele/tools-tracker/internal/common"
	"github.com/joseph-ayodele/tools-tracker/internal/entity"
	"github.com/joseph-ayodele/tools-tracker/internal/pipeline"
)

const JobsServiceName = "tools.v1.JobsService"

// JobsService is the server API of tools.v1.JobsService.
type JobsService interface {
	CreateJob(context.Context, *CreateJobRequest) (*JobResponse, error)
	CreateTestJob(context.Context, *Empty) (*JobResponse, error)
	GetJob(context.Context, *JobRequest) (*JobResponse, error)
	GetStatus(context.Context, *JobRequest) (*StatusResponse, error)
	SetStatus(context.Context, *SetStatusRequest) (*StatusResponse, error)
	RecordDetections(context.Context, *RecordDetectionsRequest) (*RecordDetectionsResponse, error)
	Reconcile(context.Context, *JobRequest) (*ReconcileResponse, error)
	ProcessArtifact(context.Context, *ProcessArtifactRequest) (*ProcessArtifactResponse, error)
	ExportJob(context.Context, *JobRequest) (*ExportJobResponse, error)
	DeleteJob(context.Context, *JobRequest) (*Empty, error)
}

var jobsServiceDesc = grpc.ServiceDesc{
	ServiceName: JobsServiceName,
	HandlerType: (*JobsService)(nil),
	Methods: []grpc.MethodDesc{
		method(JobsServiceName, "CreateJob", JobsService.CreateJob),
		method(JobsServiceName, "CreateTestJob", JobsService.CreateTestJob),
		method(JobsServiceName, "GetJob", JobsService.GetJob),
		method(JobsServiceName, "GetStatus", JobsService.GetStatus),
		method(JobsServiceName, "SetStatus", JobsService.SetStatus),
		method(JobsServiceName, "RecordDetections", JobsService.RecordDetections),
		method(JobsServiceName, "Reconcile", JobsService.Reconcile),
		method(JobsServiceName, "ProcessArtifact", JobsService.ProcessArtifact),
		method(JobsServiceName, "ExportJob", JobsService.ExportJob),
		method(JobsServiceName, "DeleteJob", JobsService.DeleteJob),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tools/v1/jobs",
}

func RegisterJobsService(s grpc.ServiceRegistrar, srv JobsService) {
	s.RegisterService(&jobsServiceDesc, srv)
}

// Engine is the job-facing part of core.Engine.
type Engine interface {
	CreateJob(ctx context.Context, orderID uuid.UUID, kind constants.ActionKind) (*entity.Job, error)
	CreateTestJob(ctx context.Context) (*entity.Job, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*entity.Job, error)
	GetStatus(ctx context.Context, jobID uuid.UUID) (constants.JobStatus, error)
	SetStatus(ctx context.Context, jobID uuid.UUID, status constants.JobStatus) error
	RecordDetections(ctx context.Context, jobID uuid.UUID, detections []entity.Detection) error
	Reconcile(ctx context.Context, jobID uuid.UUID) (*entity.MatchResult, error)
	DeleteJob(ctx context.Context, jobID uuid.UUID) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, task pipeline.Task) error
}

type Exporter interface {
	JobReportXLSX(ctx context.Context, jobID uuid.UUID) ([]byte, error)
}

type JobsServer struct {
	engine    Engine
	processor pipeline.ArtifactProcessor
	queue     Enqueuer
	exporter  Exporter
	logger    *slog.Logger
}

var _ JobsService = (*JobsServer)(nil)

// NewJobsServer wires the job API. queue may be nil, in which case async processing requests
// are rejected.
func NewJobsServer(engine Engine, processor pipeline.ArtifactProcessor, queue Enqueuer, exporter Exporter, logger *slog.Logger) *JobsServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobsServer{engine: engine, processor: processor, queue: queue, exporter: exporter, logger: logger}
}

func (s *JobsServer) CreateJob(ctx context.Context, req *CreateJobRequest) (*JobResponse, error) {
	orderID, err := parseID("order_id", req.OrderID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	kind, ok := constants.ParseActionKind(req.ActionKind)
	if !ok {
		return nil, common.InvalidArgumentErrorf("unknown action_kind %q", req.ActionKind)
	}
	job, err := s.engine.CreateJob(ctx, orderID, kind)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return &JobResponse{Job: job}, nil
}

func (s *JobsServer) CreateTestJob(ctx context.Context, _ *Empty) (*JobResponse, error) {
	job, err := s.engine.CreateTestJob(ctx)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return &JobResponse{Job: job}, nil
}

func (s *JobsServer) GetJob(ctx context.Context, req *JobRequest) (*JobResponse, error) {
	jobID, err := parseID("job_id", req.JobID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	job, err := s.engine.GetJob(ctx, jobID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return &JobResponse{Job: job}, nil
}

func (s *JobsServer) GetStatus(ctx context.Context, req *JobRequest) (*StatusResponse, error) {
	jobID, err := parseID("job_id", req.JobID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	st, err := s.engine.GetStatus(ctx, jobID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return &StatusResponse{JobID: jobID.String(), Status: st}, nil
}

func (s *JobsServer) SetStatus(ctx context.Context, req *SetStatusRequest) (*StatusResponse, error) {
	jobID, err := parseID("job_id", req.JobID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	st, ok := constants.ParseJobStatus(req.Status)
	if !ok {
		return nil, common.InvalidArgumentErrorf("unknown status %q", req.Status)
	}
	if err := s.engine.SetStatus(ctx, jobID, st); err != nil {
		return nil, common.ToStatus(err)
	}
	return s.GetStatus(ctx, &JobRequest{JobID: req.JobID})
}

func (s *JobsServer) RecordDetections(ctx context.Context, req *RecordDetectionsRequest) (*RecordDetectionsResponse, error) {
	jobID, err := parseID("job_id", req.JobID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	if err := s.engine.RecordDetections(ctx, jobID, req.Detections); err != nil {
		return nil, common.ToStatus(err)
	}
	return &RecordDetectionsResponse{Stored: len(req.Detections)}, nil
}

func (s *JobsServer) Reconcile(ctx context.Context, req *JobRequest) (*ReconcileResponse, error) {
	jobID, err := parseID("job_id", req.JobID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	res, err := s.engine.Reconcile(ctx, jobID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	st, err := s.engine.GetStatus(ctx, jobID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return &ReconcileResponse{Result: res, Status: st}, nil
}

func (s *JobsServer) ProcessArtifact(ctx context.Context, req *ProcessArtifactRequest) (*ProcessArtifactResponse, error) {
	jobID, err := parseID("job_id", req.JobID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	if req.Async {
		if s.queue == nil {
			return nil, common.InvalidArgumentError("async processing is not enabled")
		}
		if _, err := s.engine.GetJob(ctx, jobID); err != nil {
			return nil, common.ToStatus(err)
		}
		task := pipeline.Task{JobID: jobID, RawKey: req.Key, RequestID: common.RequestIDFromContext(ctx)}
		if err := s.queue.Enqueue(ctx, task); err != nil {
			return nil, common.ToStatus(err)
		}
		return &ProcessArtifactResponse{Queued: true}, nil
	}

	report, err := s.processor.ProcessArtifact(ctx, jobID, req.Key)
	if err != nil {
		common.LoggerFromContext(ctx, s.logger).Warn("process artifact failed", "job_id", jobID, "key", req.Key, "error", err)
		return nil, common.ToStatus(err)
	}
	return &ProcessArtifactResponse{Report: report}, nil
}

func (s *JobsServer) ExportJob(ctx context.Context, req *JobRequest) (*ExportJobResponse, error) {
	jobID, err := parseID("job_id", req.JobID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	content, err := s.exporter.JobReportXLSX(ctx, jobID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return &ExportJobResponse{
		Filename: fmt.Sprintf("job-%s.xlsx", jobID),
		Content:  content,
	}, nil
}

func (s *JobsServer) DeleteJob(ctx context.Context, req *JobRequest) (*Empty, error) {
	jobID, err := parseID("job_id", req.JobID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	if err := s.engine.DeleteJob(ctx, jobID); err != nil {
		return nil, common.ToStatus(err)
	}
	return &Empty{}, nil
}
