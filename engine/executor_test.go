package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xminidb/basic"
	"github.com/zhukovaskychina/xminidb/conf"
	"github.com/zhukovaskychina/xminidb/manager"
	"github.com/zhukovaskychina/xminidb/metadata"
	"github.com/zhukovaskychina/xminidb/plan"
)

func newTestEngine(t *testing.T) *StorageEngine {
	t.Helper()
	cfg := conf.NewCfg()
	cfg.LogLevel = "error"
	eng := NewMemoryStorageEngine(cfg)
	t.Cleanup(eng.Close)
	return eng
}

func usersSchema() *metadata.Schema {
	return metadata.NewSchema([]metadata.Column{
		{Name: "id", Type: basic.TypeInteger},
		{Name: "dept", Type: basic.TypeVarchar},
		{Name: "salary", Type: basic.TypeInteger},
	})
}

func intConst(v int64) plan.Expression {
	return plan.NewConstant(basic.NewIntegerValue(v))
}

func strConst(v string) plan.Expression {
	return plan.NewConstant(basic.NewVarcharValue(v))
}

func countSchema() *metadata.Schema {
	return metadata.NewSchema([]metadata.Column{{Name: "count", Type: basic.TypeInteger}})
}

// seedUsers creates the users table with a primary index on id and loads the
// fixture rows in one committed transaction.
func seedUsers(t *testing.T, eng *StorageEngine) {
	t.Helper()
	_, err := eng.Catalog().CreateTable("users", usersSchema())
	require.NoError(t, err)
	_, err = eng.Catalog().CreateIndex("users_pk", "users", 0, true)
	require.NoError(t, err)

	rows := [][]plan.Expression{
		{intConst(1), strConst("eng"), intConst(100)},
		{intConst(2), strConst("eng"), intConst(200)},
		{intConst(3), strConst("sales"), intConst(150)},
		{intConst(4), strConst("sales"), intConst(150)},
		{intConst(5), strConst("ops"), intConst(50)},
	}
	txn := eng.Begin(manager.SnapshotIsolation)
	values := plan.NewValuesPlan(usersSchema(), rows)
	insert := plan.NewInsertPlan(countSchema(), "users", values)
	result, err := eng.ExecutePlan(context.Background(), txn, insert)
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, int64(5), result[0].Tuple.Value(0).AsInteger())
	require.NoError(t, eng.TxnManager().Commit(txn))
}

func scanUsers(filter plan.Expression) *plan.SeqScanPlan {
	return plan.NewSeqScanPlan(usersSchema(), "users", filter)
}

func rowInts(t *testing.T, row *Row, cols ...int) []int64 {
	t.Helper()
	out := make([]int64, 0, len(cols))
	for _, c := range cols {
		out = append(out, row.Tuple.Value(c).AsInteger())
	}
	return out
}

func TestSeqScanAndFilter(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng)
	ctx := context.Background()

	t.Run("全表扫描按堆序返回", func(t *testing.T) {
		txn := eng.Begin(manager.SnapshotIsolation)
		defer eng.TxnManager().Abort(txn)

		rows, err := eng.ExecutePlan(ctx, txn, scanUsers(nil))
		require.NoError(t, err)
		require.Len(t, rows, 5)
		for i, row := range rows {
			assert.Equal(t, int64(i+1), row.Tuple.Value(0).AsInteger())
		}
	})

	t.Run("谓词下推过滤", func(t *testing.T) {
		txn := eng.Begin(manager.SnapshotIsolation)
		defer eng.TxnManager().Abort(txn)

		pred := plan.NewComparison(plan.CompareGreaterThan,
			plan.NewColumnValue(0, 2, basic.TypeInteger), intConst(100))
		filter := plan.NewFilterPlan(usersSchema(), scanUsers(nil), pred)
		rows, err := eng.ExecutePlan(ctx, txn, filter)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		for _, row := range rows {
			assert.Greater(t, row.Tuple.Value(2).AsInteger(), int64(100))
		}
	})

	t.Run("等值过滤经索引回表", func(t *testing.T) {
		txn := eng.Begin(manager.SnapshotIsolation)
		defer eng.TxnManager().Abort(txn)

		pred := plan.NewComparison(plan.CompareEqual,
			plan.NewColumnValue(0, 0, basic.TypeInteger), intConst(3))
		filter := plan.NewFilterPlan(usersSchema(), scanUsers(nil), pred)

		// The optimizer must turn this shape into an index scan.
		optimized := eng.Optimizer().Optimize(filter)
		require.Equal(t, plan.PlanIndexScan, optimized.Type())

		rows, err := eng.ExecutePlan(ctx, txn, filter)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, []int64{3, 150}, rowInts(t, rows[0], 0, 2))
	})
}

func TestProjection(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng)
	txn := eng.Begin(manager.SnapshotIsolation)
	defer eng.TxnManager().Abort(txn)

	outSchema := metadata.NewSchema([]metadata.Column{
		{Name: "id", Type: basic.TypeInteger},
		{Name: "double_salary", Type: basic.TypeInteger},
	})
	proj := plan.NewProjectionPlan(outSchema, scanUsers(nil), []plan.Expression{
		plan.NewColumnValue(0, 0, basic.TypeInteger),
		plan.NewArithmetic(plan.ArithmeticPlus,
			plan.NewColumnValue(0, 2, basic.TypeInteger),
			plan.NewColumnValue(0, 2, basic.TypeInteger)),
	})
	rows, err := eng.ExecutePlan(context.Background(), txn, proj)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []int64{1, 200}, rowInts(t, rows[0], 0, 1))
	assert.Equal(t, []int64{5, 100}, rowInts(t, rows[4], 0, 1))
}

func TestInsertRejectsDuplicatePrimaryKey(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng)

	txn := eng.Begin(manager.SnapshotIsolation)
	values := plan.NewValuesPlan(usersSchema(), [][]plan.Expression{
		{intConst(3), strConst("dup"), intConst(1)},
	})
	insert := plan.NewInsertPlan(countSchema(), "users", values)
	_, err := eng.ExecutePlan(context.Background(), txn, insert)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrUniqueKeyViolation.Error())
	assert.Equal(t, manager.TxnTainted, txn.State())
	require.NoError(t, eng.TxnManager().Abort(txn))
}

func TestVarcharPrimaryKeysSharingPrefix(t *testing.T) {
	eng := newTestEngine(t)
	schema := metadata.NewSchema([]metadata.Column{
		{Name: "sku", Type: basic.TypeVarchar},
		{Name: "qty", Type: basic.TypeInteger},
	})
	_, err := eng.Catalog().CreateTable("items", schema)
	require.NoError(t, err)
	_, err = eng.Catalog().CreateIndex("items_pk", "items", 0, true)
	require.NoError(t, err)

	// Both keys share their first 8 bytes; they must index as distinct
	// values, not collide as duplicates.
	txn := eng.Begin(manager.SnapshotIsolation)
	values := plan.NewValuesPlan(schema, [][]plan.Expression{
		{strConst("warehouse-a"), intConst(10)},
		{strConst("warehouse-b"), intConst(20)},
	})
	insert := plan.NewInsertPlan(countSchema(), "items", values)
	result, err := eng.ExecutePlan(context.Background(), txn, insert)
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, int64(2), result[0].Tuple.Value(0).AsInteger())
	require.NoError(t, eng.TxnManager().Commit(txn))

	// An equality filter on the key column goes through the index and must
	// resolve the right row.
	reader := eng.Begin(manager.SnapshotIsolation)
	defer eng.TxnManager().Abort(reader)

	pred := plan.NewComparison(plan.CompareEqual,
		plan.NewColumnValue(0, 0, basic.TypeVarchar), strConst("warehouse-b"))
	filter := plan.NewFilterPlan(schema, plan.NewSeqScanPlan(schema, "items", nil), pred)
	require.Equal(t, plan.PlanIndexScan, eng.Optimizer().Optimize(filter).Type())

	rows, err := eng.ExecutePlan(context.Background(), reader, filter)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "warehouse-b", rows[0].Tuple.Value(0).AsVarchar())
	assert.Equal(t, int64(20), rows[0].Tuple.Value(1).AsInteger())
}

func joinOutSchema() *metadata.Schema {
	return metadata.NewSchema([]metadata.Column{
		{Name: "id", Type: basic.TypeInteger},
		{Name: "dept", Type: basic.TypeVarchar},
		{Name: "salary", Type: basic.TypeInteger},
		{Name: "dept2", Type: basic.TypeVarchar},
		{Name: "budget", Type: basic.TypeInteger},
	})
}

func deptsSchema() *metadata.Schema {
	return metadata.NewSchema([]metadata.Column{
		{Name: "dept", Type: basic.TypeVarchar},
		{Name: "budget", Type: basic.TypeInteger},
	})
}

func seedDepts(t *testing.T, eng *StorageEngine) {
	t.Helper()
	_, err := eng.Catalog().CreateTable("depts", deptsSchema())
	require.NoError(t, err)

	txn := eng.Begin(manager.SnapshotIsolation)
	values := plan.NewValuesPlan(deptsSchema(), [][]plan.Expression{
		{strConst("eng"), intConst(1000)},
		{strConst("sales"), intConst(500)},
	})
	insert := plan.NewInsertPlan(countSchema(), "depts", values)
	_, err = eng.ExecutePlan(context.Background(), txn, insert)
	require.NoError(t, err)
	require.NoError(t, eng.TxnManager().Commit(txn))
}

func TestJoins(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng)
	seedDepts(t, eng)
	ctx := context.Background()

	equiPred := plan.NewComparison(plan.CompareEqual,
		plan.NewColumnValue(0, 1, basic.TypeVarchar),
		plan.NewColumnValue(1, 0, basic.TypeVarchar))

	t.Run("内连接", func(t *testing.T) {
		txn := eng.Begin(manager.SnapshotIsolation)
		defer eng.TxnManager().Abort(txn)

		nlj := plan.NewNestedLoopJoinPlan(joinOutSchema(),
			scanUsers(nil),
			plan.NewSeqScanPlan(deptsSchema(), "depts", nil),
			equiPred, plan.InnerJoin)
		rows, err := eng.ExecutePlan(ctx, txn, nlj)
		require.NoError(t, err)
		// ops has no department row.
		require.Len(t, rows, 4)
		for _, row := range rows {
			assert.Equal(t, row.Tuple.Value(1).AsVarchar(), row.Tuple.Value(3).AsVarchar())
		}
	})

	t.Run("左外连接补NULL", func(t *testing.T) {
		txn := eng.Begin(manager.SnapshotIsolation)
		defer eng.TxnManager().Abort(txn)

		nlj := plan.NewNestedLoopJoinPlan(joinOutSchema(),
			scanUsers(nil),
			plan.NewSeqScanPlan(deptsSchema(), "depts", nil),
			equiPred, plan.LeftJoin)
		rows, err := eng.ExecutePlan(ctx, txn, nlj)
		require.NoError(t, err)
		require.Len(t, rows, 5)

		// The ops row is padded with NULLs on the right side.
		var padded *Row
		for _, row := range rows {
			if row.Tuple.Value(1).AsVarchar() == "ops" {
				padded = row
			}
		}
		require.NotNil(t, padded)
		assert.True(t, padded.Tuple.Value(3).IsNull())
		assert.True(t, padded.Tuple.Value(4).IsNull())
	})

	t.Run("等值连接被改写为哈希连接且结果一致", func(t *testing.T) {
		txn := eng.Begin(manager.SnapshotIsolation)
		defer eng.TxnManager().Abort(txn)

		nlj := plan.NewNestedLoopJoinPlan(joinOutSchema(),
			scanUsers(nil),
			plan.NewSeqScanPlan(deptsSchema(), "depts", nil),
			equiPred, plan.InnerJoin)

		optimized := eng.Optimizer().Optimize(nlj)
		require.Equal(t, plan.PlanHashJoin, optimized.Type())

		rows, err := eng.ExecutePlan(ctx, txn, nlj)
		require.NoError(t, err)
		require.Len(t, rows, 4)
		for _, row := range rows {
			assert.Equal(t, row.Tuple.Value(1).AsVarchar(), row.Tuple.Value(3).AsVarchar())
		}
	})
}

func TestAggregation(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng)
	ctx := context.Background()

	t.Run("分组聚合", func(t *testing.T) {
		txn := eng.Begin(manager.SnapshotIsolation)
		defer eng.TxnManager().Abort(txn)

		outSchema := metadata.NewSchema([]metadata.Column{
			{Name: "dept", Type: basic.TypeVarchar},
			{Name: "cnt", Type: basic.TypeInteger},
			{Name: "total", Type: basic.TypeInteger},
			{Name: "min", Type: basic.TypeInteger},
			{Name: "max", Type: basic.TypeInteger},
		})
		salary := plan.NewColumnValue(0, 2, basic.TypeInteger)
		agg := plan.NewAggregationPlan(outSchema, scanUsers(nil),
			[]plan.Expression{plan.NewColumnValue(0, 1, basic.TypeVarchar)},
			[]plan.Expression{salary, salary, salary, salary},
			[]plan.AggregationType{plan.AggCountStar, plan.AggSum, plan.AggMin, plan.AggMax})

		rows, err := eng.ExecutePlan(ctx, txn, agg)
		require.NoError(t, err)
		require.Len(t, rows, 3)

		byDept := map[string][]int64{}
		for _, row := range rows {
			byDept[row.Tuple.Value(0).AsVarchar()] = rowInts(t, row, 1, 2, 3, 4)
		}
		assert.Equal(t, []int64{2, 300, 100, 200}, byDept["eng"])
		assert.Equal(t, []int64{2, 300, 150, 150}, byDept["sales"])
		assert.Equal(t, []int64{1, 50, 50, 50}, byDept["ops"])
	})

	t.Run("空输入无分组时产生初始值行", func(t *testing.T) {
		txn := eng.Begin(manager.SnapshotIsolation)
		defer eng.TxnManager().Abort(txn)

		outSchema := metadata.NewSchema([]metadata.Column{
			{Name: "cnt", Type: basic.TypeInteger},
			{Name: "sum", Type: basic.TypeInteger},
		})
		never := plan.NewComparison(plan.CompareLessThan,
			plan.NewColumnValue(0, 2, basic.TypeInteger), intConst(-1))
		salary := plan.NewColumnValue(0, 2, basic.TypeInteger)
		agg := plan.NewAggregationPlan(outSchema, scanUsers(never),
			nil,
			[]plan.Expression{salary, salary},
			[]plan.AggregationType{plan.AggCountStar, plan.AggSum})

		rows, err := eng.ExecutePlan(ctx, txn, agg)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(0), rows[0].Tuple.Value(0).AsInteger())
		assert.True(t, rows[0].Tuple.Value(1).IsNull())
	})
}

func TestSortLimitTopN(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng)
	ctx := context.Background()

	salaryDesc := []plan.OrderBy{
		{Type: plan.OrderByDesc, Expr: plan.NewColumnValue(0, 2, basic.TypeInteger)},
		{Type: plan.OrderByAsc, Expr: plan.NewColumnValue(0, 0, basic.TypeInteger)},
	}

	t.Run("排序", func(t *testing.T) {
		txn := eng.Begin(manager.SnapshotIsolation)
		defer eng.TxnManager().Abort(txn)

		sortPlan := plan.NewSortPlan(usersSchema(), scanUsers(nil), salaryDesc)
		rows, err := eng.ExecutePlan(ctx, txn, sortPlan)
		require.NoError(t, err)
		require.Len(t, rows, 5)
		ids := make([]int64, 0, 5)
		for _, row := range rows {
			ids = append(ids, row.Tuple.Value(0).AsInteger())
		}
		// salaries 200,150,150,100,50 with id ascending among the ties
		assert.Equal(t, []int64{2, 3, 4, 1, 5}, ids)
	})

	t.Run("Limit截断", func(t *testing.T) {
		txn := eng.Begin(manager.SnapshotIsolation)
		defer eng.TxnManager().Abort(txn)

		limit := plan.NewLimitPlan(usersSchema(), scanUsers(nil), 2)
		rows, err := eng.ExecutePlan(ctx, txn, limit)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, int64(1), rows[0].Tuple.Value(0).AsInteger())
		assert.Equal(t, int64(2), rows[1].Tuple.Value(0).AsInteger())
	})

	t.Run("TopN与全排序前缀一致", func(t *testing.T) {
		txn := eng.Begin(manager.SnapshotIsolation)
		defer eng.TxnManager().Abort(txn)

		topn := plan.NewTopNPlan(usersSchema(), scanUsers(nil), 3, salaryDesc)
		rows, err := eng.ExecutePlan(ctx, txn, topn)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		ids := make([]int64, 0, 3)
		for _, row := range rows {
			ids = append(ids, row.Tuple.Value(0).AsInteger())
		}
		assert.Equal(t, []int64{2, 3, 4}, ids)
	})
}

func TestWindowFunctions(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng)
	ctx := context.Background()

	t.Run("RANK同值共享名次并跳跃", func(t *testing.T) {
		txn := eng.Begin(manager.SnapshotIsolation)
		defer eng.TxnManager().Abort(txn)

		outSchema := metadata.NewSchema([]metadata.Column{
			{Name: "id", Type: basic.TypeInteger},
			{Name: "rank", Type: basic.TypeInteger},
		})
		salaryAsc := []plan.OrderBy{{Type: plan.OrderByAsc, Expr: plan.NewColumnValue(0, 2, basic.TypeInteger)}}
		wp := plan.NewWindowPlan(outSchema, scanUsers(nil),
			[]plan.Expression{
				plan.NewColumnValue(0, 0, basic.TypeInteger),
				plan.NewColumnValue(0, plan.WindowPlaceholderColIdx, basic.TypeInteger),
			},
			[]plan.WindowFunction{{
				Type:    plan.WindowRank,
				OrderBy: salaryAsc,
			}})

		rows, err := eng.ExecutePlan(ctx, txn, wp)
		require.NoError(t, err)
		require.Len(t, rows, 5)

		// Sorted by salary: 50,100,150,150,200 -> ranks 1,2,3,3,5.
		ranks := make([]int64, 0, 5)
		for _, row := range rows {
			ranks = append(ranks, row.Tuple.Value(1).AsInteger())
		}
		assert.Equal(t, []int64{1, 2, 3, 3, 5}, ranks)
	})

	t.Run("无排序的分区聚合输出终值", func(t *testing.T) {
		txn := eng.Begin(manager.SnapshotIsolation)
		defer eng.TxnManager().Abort(txn)

		outSchema := metadata.NewSchema([]metadata.Column{
			{Name: "id", Type: basic.TypeInteger},
			{Name: "dept_total", Type: basic.TypeInteger},
		})
		wp := plan.NewWindowPlan(outSchema, scanUsers(nil),
			[]plan.Expression{
				plan.NewColumnValue(0, 0, basic.TypeInteger),
				plan.NewColumnValue(0, plan.WindowPlaceholderColIdx, basic.TypeInteger),
			},
			[]plan.WindowFunction{{
				Type:        plan.WindowSum,
				Function:    plan.NewColumnValue(0, 2, basic.TypeInteger),
				PartitionBy: []plan.Expression{plan.NewColumnValue(0, 1, basic.TypeVarchar)},
			}})

		rows, err := eng.ExecutePlan(ctx, txn, wp)
		require.NoError(t, err)
		require.Len(t, rows, 5)

		totals := map[int64]int64{}
		for _, row := range rows {
			totals[row.Tuple.Value(0).AsInteger()] = row.Tuple.Value(1).AsInteger()
		}
		assert.Equal(t, int64(300), totals[1])
		assert.Equal(t, int64(300), totals[2])
		assert.Equal(t, int64(300), totals[3])
		assert.Equal(t, int64(300), totals[4])
		assert.Equal(t, int64(50), totals[5])
	})

	t.Run("带排序的累计和", func(t *testing.T) {
		txn := eng.Begin(manager.SnapshotIsolation)
		defer eng.TxnManager().Abort(txn)

		outSchema := metadata.NewSchema([]metadata.Column{
			{Name: "id", Type: basic.TypeInteger},
			{Name: "running", Type: basic.TypeInteger},
		})
		idAsc := []plan.OrderBy{{Type: plan.OrderByAsc, Expr: plan.NewColumnValue(0, 0, basic.TypeInteger)}}
		wp := plan.NewWindowPlan(outSchema, scanUsers(nil),
			[]plan.Expression{
				plan.NewColumnValue(0, 0, basic.TypeInteger),
				plan.NewColumnValue(0, plan.WindowPlaceholderColIdx, basic.TypeInteger),
			},
			[]plan.WindowFunction{{
				Type:     plan.WindowSum,
				Function: plan.NewColumnValue(0, 2, basic.TypeInteger),
				OrderBy:  idAsc,
			}})

		rows, err := eng.ExecutePlan(ctx, txn, wp)
		require.NoError(t, err)
		require.Len(t, rows, 5)

		running := make([]int64, 0, 5)
		for _, row := range rows {
			running = append(running, row.Tuple.Value(1).AsInteger())
		}
		assert.Equal(t, []int64{100, 300, 450, 600, 650}, running)
	})
}
