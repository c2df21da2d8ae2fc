package flowrpc

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// FlowServiceName is the fully-qualified name of the FlowService.
const FlowServiceName = "supportflow.flow.v1.FlowService"

// Procedure paths for each FlowService RPC.
const (
	ProcessTurnProcedure             = "/" + FlowServiceName + "/ProcessTurn"
	GetSessionStateProcedure         = "/" + FlowServiceName + "/GetSessionState"
	ResetSessionProcedure            = "/" + FlowServiceName + "/ResetSession"
	ForceStateTransitionProcedure    = "/" + FlowServiceName + "/ForceStateTransition"
	CleanupInactiveSessionsProcedure = "/" + FlowServiceName + "/CleanupInactiveSessions"
	GetFlowMetricsProcedure          = "/" + FlowServiceName + "/GetFlowMetrics"
	GetSessionMetricsProcedure       = "/" + FlowServiceName + "/GetSessionMetrics"
	ListOpenTicketsProcedure         = "/" + FlowServiceName + "/ListOpenTickets"
	CloseTicketProcedure             = "/" + FlowServiceName + "/CloseTicket"
)

// FlowServiceHandler is implemented by the server side of the FlowService.
type FlowServiceHandler interface {
	ProcessTurn(context.Context, *connect.Request[ProcessTurnRequest]) (*connect.Response[ProcessTurnResponse], error)
	GetSessionState(context.Context, *connect.Request[GetSessionStateRequest]) (*connect.Response[GetSessionStateResponse], error)
	ResetSession(context.Context, *connect.Request[ResetSessionRequest]) (*connect.Response[ResetSessionResponse], error)
	ForceStateTransition(context.Context, *connect.Request[ForceStateTransitionRequest]) (*connect.Response[ForceStateTransitionResponse], error)
	CleanupInactiveSessions(context.Context, *connect.Request[CleanupInactiveSessionsRequest]) (*connect.Response[CleanupInactiveSessionsResponse], error)
	GetFlowMetrics(context.Context, *connect.Request[GetFlowMetricsRequest]) (*connect.Response[GetFlowMetricsResponse], error)
	GetSessionMetrics(context.Context, *connect.Request[GetSessionMetricsRequest]) (*connect.Response[GetSessionMetricsResponse], error)
	ListOpenTickets(context.Context, *connect.Request[ListOpenTicketsRequest]) (*connect.Response[ListOpenTicketsResponse], error)
	CloseTicket(context.Context, *connect.Request[CloseTicketRequest]) (*connect.Response[CloseTicketResponse], error)
}

// NewFlowServiceHandler builds an HTTP handler for svc. It returns the path
// to mount the handler on. opts must include a codec able to carry plain
// structs, such as connectutil.JSONCodec.
func NewFlowServiceHandler(svc FlowServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	routes := map[string]http.Handler{
		ProcessTurnProcedure:             connect.NewUnaryHandler(ProcessTurnProcedure, svc.ProcessTurn, opts...),
		GetSessionStateProcedure:         connect.NewUnaryHandler(GetSessionStateProcedure, svc.GetSessionState, opts...),
		ResetSessionProcedure:            connect.NewUnaryHandler(ResetSessionProcedure, svc.ResetSession, opts...),
		ForceStateTransitionProcedure:    connect.NewUnaryHandler(ForceStateTransitionProcedure, svc.ForceStateTransition, opts...),
		CleanupInactiveSessionsProcedure: connect.NewUnaryHandler(CleanupInactiveSessionsProcedure, svc.CleanupInactiveSessions, opts...),
		GetFlowMetricsProcedure:          connect.NewUnaryHandler(GetFlowMetricsProcedure, svc.GetFlowMetrics, opts...),
		GetSessionMetricsProcedure:       connect.NewUnaryHandler(GetSessionMetricsProcedure, svc.GetSessionMetrics, opts...),
		ListOpenTicketsProcedure:         connect.NewUnaryHandler(ListOpenTicketsProcedure, svc.ListOpenTickets, opts...),
		CloseTicketProcedure:             connect.NewUnaryHandler(CloseTicketProcedure, svc.CloseTicket, opts...),
	}

	prefix := "/" + FlowServiceName + "/"
	return prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := routes[r.URL.Path]
		if !ok || !strings.HasPrefix(r.URL.Path, prefix) {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// FlowServiceClient is a typed client for the FlowService.
type FlowServiceClient struct {
	processTurn             *connect.Client[ProcessTurnRequest, ProcessTurnResponse]
	getSessionState         *connect.Client[GetSessionStateRequest, GetSessionStateResponse]
	resetSession            *connect.Client[ResetSessionRequest, ResetSessionResponse]
	forceStateTransition    *connect.Client[ForceStateTransitionRequest, ForceStateTransitionResponse]
	cleanupInactiveSessions *connect.Client[CleanupInactiveSessionsRequest, CleanupInactiveSessionsResponse]
	getFlowMetrics          *connect.Client[GetFlowMetricsRequest, GetFlowMetricsResponse]
	getSessionMetrics       *connect.Client[GetSessionMetricsRequest, GetSessionMetricsResponse]
	listOpenTickets         *connect.Client[ListOpenTicketsRequest, ListOpenTicketsResponse]
	closeTicket             *connect.Client[CloseTicketRequest, CloseTicketResponse]
}

// NewFlowServiceClient creates a client for the FlowService at baseURL.
func NewFlowServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *FlowServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &FlowServiceClient{
		processTurn:             connect.NewClient[ProcessTurnRequest, ProcessTurnResponse](httpClient, baseURL+ProcessTurnProcedure, opts...),
		getSessionState:         connect.NewClient[GetSessionStateRequest, GetSessionStateResponse](httpClient, baseURL+GetSessionStateProcedure, opts...),
		resetSession:            connect.NewClient[ResetSessionRequest, ResetSessionResponse](httpClient, baseURL+ResetSessionProcedure, opts...),
		forceStateTransition:    connect.NewClient[ForceStateTransitionRequest, ForceStateTransitionResponse](httpClient, baseURL+ForceStateTransitionProcedure, opts...),
		cleanupInactiveSessions: connect.NewClient[CleanupInactiveSessionsRequest, CleanupInactiveSessionsResponse](httpClient, baseURL+CleanupInactiveSessionsProcedure, opts...),
		getFlowMetrics:          connect.NewClient[GetFlowMetricsRequest, GetFlowMetricsResponse](httpClient, baseURL+GetFlowMetricsProcedure, opts...),
		getSessionMetrics:       connect.NewClient[GetSessionMetricsRequest, GetSessionMetricsResponse](httpClient, baseURL+GetSessionMetricsProcedure, opts...),
		listOpenTickets:         connect.NewClient[ListOpenTicketsRequest, ListOpenTicketsResponse](httpClient, baseURL+ListOpenTicketsProcedure, opts...),
		closeTicket:             connect.NewClient[CloseTicketRequest, CloseTicketResponse](httpClient, baseURL+CloseTicketProcedure, opts...),
	}
}

func (c *FlowServiceClient) ProcessTurn(ctx context.Context, req *connect.Request[ProcessTurnRequest]) (*connect.Response[ProcessTurnResponse], error) {
	return c.processTurn.CallUnary(ctx, req)
}

func (c *FlowServiceClient) GetSessionState(ctx context.Context, req *connect.Request[GetSessionStateRequest]) (*connect.Response[GetSessionStateResponse], error) {
	return c.getSessionState.CallUnary(ctx, req)
}

func (c *FlowServiceClient) ResetSession(ctx context.Context, req *connect.Request[ResetSessionRequest]) (*connect.Response[ResetSessionResponse], error) {
	return c.resetSession.CallUnary(ctx, req)
}

func (c *FlowServiceClient) ForceStateTransition(ctx context.Context, req *connect.Request[ForceStateTransitionRequest]) (*connect.Response[ForceStateTransitionResponse], error) {
	return c.forceStateTransition.CallUnary(ctx, req)
}

func (c *FlowServiceClient) CleanupInactiveSessions(ctx context.Context, req *connect.Request[CleanupInactiveSessionsRequest]) (*connect.Response[CleanupInactiveSessionsResponse], error) {
	return c.cleanupInactiveSessions.CallUnary(ctx, req)
}

func (c *FlowServiceClient) GetFlowMetrics(ctx context.Context, req *connect.Request[GetFlowMetricsRequest]) (*connect.Response[GetFlowMetricsResponse], error) {
	return c.getFlowMetrics.CallUnary(ctx, req)
}

func (c *FlowServiceClient) GetSessionMetrics(ctx context.Context, req *connect.Request[GetSessionMetricsRequest]) (*connect.Response[GetSessionMetricsResponse], error) {
	return c.getSessionMetrics.CallUnary(ctx, req)
}

func (c *FlowServiceClient) ListOpenTickets(ctx context.Context, req *connect.Request[ListOpenTicketsRequest]) (*connect.Response[ListOpenTicketsResponse], error) {
	return c.listOpenTickets.CallUnary(ctx, req)
}

func (c *FlowServiceClient) CloseTicket(ctx context.Context, req *connect.Request[CloseTicketRequest]) (*connect.Response[CloseTicketResponse], error) {
	return c.closeTicket.CallUnary(ctx, req)
}
