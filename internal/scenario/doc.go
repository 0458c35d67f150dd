// Package scenario はワーカープールの負荷シナリオ実行機能を提供する。
//
// シナリオエンジンはプール、メトリクス、イベントバスを連携させ、
// 複数のプロデューサーからジョブを投入して実行結果を集計する。
//
// # 機能
//
// - シナリオ定義と実行
// - 定義済みプリセットシナリオ
// - パニック注入（N件ごと）
// - 実行結果のレポート生成
//
// # プリセットシナリオ
//
// - quick: 短時間の動作確認
// - stress: 大量の短いジョブ
// - faulty: パニックをジョブ単位で隔離
// - restart: パニックしたワーカーを再起動
// - serial: 単一ワーカーでの逐次実行
//
// # 使用例
//
//	config := scenario.FaultyScenario()
//	engine := scenario.New(config)
//	result, err := engine.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Report())
//
// Run は ctx のキャンセルで投入を打ち切るが、受け付け済みのジョブは
// プール停止時にすべて実行される。
package scenario
