// Package api はワーカープールのHTTP APIとWebSocketイベント配信を提供する。
//
// # エンドポイント
//
//	GET  /api/status           実行中シナリオとプールの状態
//	GET  /api/workers          ワーカーごとの状態
//	GET  /api/metrics          ジョブ統計
//	POST /api/scenario/start   シナリオ開始（プリセット名と上書き値）
//	POST /api/scenario/stop    投入の打ち切り
//	GET  /api/scenario/result  直近の実行結果
//	GET  /api/presets          プリセット一覧
//	GET  /metrics              Prometheus形式のメトリクス
//	     /ws                   プールイベントのストリーム
//
// シナリオはバックグラウンドで実行され、同時に実行できるのは1つだけ。
// Prometheusのレジストリはシナリオ開始ごとに作り直される。
package api
